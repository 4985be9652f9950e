package gridsubmit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionString(t *testing.T) {
	assert.Equal(t,
		"dbname=gridsubmit host=localhost port=5432 sslmode=disable user=postgres",
		ConnectionString(map[string]string{
			"user":    "postgres",
			"host":    "localhost",
			"port":    "5432",
			"dbname":  "gridsubmit",
			"sslmode": "disable",
		}))
	assert.Equal(t, "", ConnectionString(nil))
}
