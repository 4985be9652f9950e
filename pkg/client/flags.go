package client

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AddConnectionCommandlineArgs registers the server connection flags on the
// root command and binds them into viper so config files can supply them too.
func AddConnectionCommandlineArgs(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "Submit server url")
	rootCmd.PersistentFlags().String("authenticator", "", "Account authenticator")
	_ = viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
	_ = viper.BindPFlag("authenticator", rootCmd.PersistentFlags().Lookup("authenticator"))
}

func ExtractCommandlineConnectionDetails() *ApiConnectionDetails {
	return &ApiConnectionDetails{
		Url:           viper.GetString("url"),
		Authenticator: viper.GetString("authenticator"),
	}
}
