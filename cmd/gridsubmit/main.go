package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/volgrid/gridsubmit/internal/common"
	"github.com/volgrid/gridsubmit/internal/gridsubmit"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/configuration"
)

const CustomConfigLocation string = "config"
const MigrateDatabase string = "migrateDatabase"

func init() {
	pflag.String(CustomConfigLocation, "", "Fully qualified path to application configuration file")
	pflag.Bool(MigrateDatabase, false, "Create the database schema and exit")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.SubmitServerConfig
	userSpecifiedConfig := viper.GetString(CustomConfigLocation)
	common.LoadConfig(&config, "./config/gridsubmit", userSpecifiedConfig)

	if viper.GetBool(MigrateDatabase) {
		if err := gridsubmit.Migrate(context.Background(), config); err != nil {
			log.Error(err)
			os.Exit(-1)
		}
		log.Info("Database migration complete")
		return
	}

	log.Info("Starting...")

	shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
	defer shutdownMetricServer()

	shutdown, err := gridsubmit.StartUp(config)
	if err != nil {
		log.Error(err)
		os.Exit(-1)
	}
	defer shutdown()

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)
	<-stopSignal
}
