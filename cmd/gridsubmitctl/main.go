package main

import (
	"github.com/volgrid/gridsubmit/cmd/gridsubmitctl/cmd"
	"github.com/volgrid/gridsubmit/internal/common"
)

func main() {
	common.ConfigureCommandLineLogging()
	cmd.Execute()
}
