package cmdflags

import (
	"github.com/andrebq/doorman/cookie"
	"github.com/urfave/cli/v2"
)

func CookieSecretEnvVar(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = cookie.CookieSecretEnvVar
	}
	return &cli.StringFlag{
		Name:        "cookie-secret-envvar-name",
		Usage:       "Name of the environment variable that holds the base64 cookie signing key. The key itself should not be passed as an argument",
		Hidden:      true,
		Value:       *out,
		Destination: out,
	}
}

func EncryptionKeyEnvVar(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = cookie.EncryptionKeyEnvVar
	}
	return &cli.StringFlag{
		Name:        "encryption-key-envvar-name",
		Usage:       "Name of the environment variable that holds the cookie encryption passphrase",
		Hidden:      true,
		Value:       *out,
		Destination: out,
	}
}
