package serve

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/andrebq/doorman/cookie"
	"github.com/andrebq/doorman/credentials"
	"github.com/andrebq/doorman/gate"
	"github.com/andrebq/doorman/gate/api"
	"github.com/andrebq/doorman/internal/cmdflags"
	"github.com/andrebq/doorman/internal/httpserver"
	"github.com/andrebq/doorman/internal/logutil"
	"github.com/andrebq/doorman/internal/upstream"
	"github.com/andrebq/doorman/session"
	"github.com/andrebq/doorman/throttle"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

type (
	options struct {
		bind          string
		upstream      string
		tlsCert       string
		tlsKey        string
		seedFile      string
		sessions      string
		sessionTTL    time.Duration
		encrypt       bool
		rateLimitMax  int
		rateLimitWin  time.Duration
		trustProxy    bool
		allowRegister bool
		pruneInterval time.Duration
		cookieSecret  string
		encryptionKey string
		store         cmdflags.StoreOptions
	}
)

func Cmd() *cli.Command {
	opts := options{
		bind:          "localhost:3000",
		sessions:      "memory",
		sessionTTL:    time.Hour,
		rateLimitMax:  throttle.DefaultMax,
		rateLimitWin:  throttle.DefaultWindow,
		allowRegister: true,
		pruneInterval: 5 * time.Minute,
		store:         cmdflags.DefaultStoreOptions(),
	}
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "bind",
			Usage:       "Address to listen for requests",
			EnvVars:     []string{"DOORMAN_BIND"},
			Value:       opts.bind,
			Destination: &opts.bind,
		},
		&cli.StringFlag{
			Name:        "upstream",
			Usage:       "URL of the service to proxy authenticated requests to (paths not handled by doorman)",
			EnvVars:     []string{"DOORMAN_UPSTREAM"},
			Destination: &opts.upstream,
		},
		&cli.StringFlag{
			Name:        "tls-cert",
			Usage:       "TLS certificate file, together with tls-key enables HTTPS",
			Destination: &opts.tlsCert,
		},
		&cli.StringFlag{
			Name:        "tls-key",
			Usage:       "TLS private key file",
			Destination: &opts.tlsKey,
		},
		&cli.StringFlag{
			Name:        "seed-file",
			Usage:       "JSON file mapping usernames to password verifiers, imported on start",
			Destination: &opts.seedFile,
		},
		&cli.StringFlag{
			Name:        "sessions",
			Usage:       "How logins are remembered: memory, bigcache, token or direct",
			Value:       opts.sessions,
			Destination: &opts.sessions,
		},
		&cli.DurationFlag{
			Name:        "session-ttl",
			Usage:       "How long a login lasts, counted from the moment it happened",
			Value:       opts.sessionTTL,
			Destination: &opts.sessionTTL,
		},
		&cli.BoolFlag{
			Name:        "encrypt-cookies",
			Usage:       "Encrypt cookie values, the passphrase is read from the encryption key environment variable",
			Destination: &opts.encrypt,
		},
		&cli.IntFlag{
			Name:        "rate-limit-max",
			Usage:       "Login attempts allowed per client in each rate limit window",
			EnvVars:     []string{"LOGIN_RATE_LIMIT_MAX"},
			Value:       opts.rateLimitMax,
			Destination: &opts.rateLimitMax,
		},
		&cli.DurationFlag{
			Name:        "rate-limit-window",
			Usage:       "Length of the sliding rate limit window",
			Value:       opts.rateLimitWin,
			Destination: &opts.rateLimitWin,
		},
		&cli.BoolFlag{
			Name:        "trust-proxy",
			Usage:       "Identify clients by the first X-Forwarded-For entry",
			Destination: &opts.trustProxy,
		},
		&cli.BoolFlag{
			Name:        "allow-register",
			Usage:       "Expose POST /register",
			Value:       opts.allowRegister,
			Destination: &opts.allowRegister,
		},
		&cli.DurationFlag{
			Name:        "prune-interval",
			Usage:       "How often expired sessions and idle rate limit counters are dropped (0 disables)",
			Value:       opts.pruneInterval,
			Destination: &opts.pruneInterval,
		},
		cmdflags.CookieSecretEnvVar(&opts.cookieSecret),
		cmdflags.EncryptionKeyEnvVar(&opts.encryptionKey),
	}
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the login server",
		Flags: append(flags, opts.store.Flags()...),
		Action: func(ctx *cli.Context) error {
			return run(ctx.Context, &opts)
		},
	}
}

func run(ctx context.Context, opts *options) error {
	if (opts.tlsCert == "") != (opts.tlsKey == "") {
		return errors.New("tls-cert and tls-key must be used together")
	}
	log := logutil.GetOrDefault(ctx)

	hasher, err := opts.store.NewHasher()
	if err != nil {
		return err
	}
	store, closeStore, err := opts.store.Open(ctx, hasher)
	if err != nil {
		return err
	}
	defer closeStore()
	if opts.seedFile != "" {
		n, err := credentials.LoadSeedFile(ctx, afero.NewOsFs(), opts.seedFile, store)
		if err != nil {
			return err
		}
		log.Info().Int("imported", n).Str("file", opts.seedFile).Msg("Seed users loaded")
	}

	codec, signKey, err := newCodec(opts)
	if err != nil {
		return err
	}
	defer signKey.Zero()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	binding, closeBinding, err := newBinding(ctx, opts, signKey)
	if err != nil {
		return err
	}
	defer closeBinding()

	limiter := throttle.New(opts.rateLimitMax, opts.rateLimitWin)
	if opts.pruneInterval > 0 {
		go limiter.RunJanitor(ctx, opts.pruneInterval)
	}

	g, err := gate.New(gate.Config{
		Credentials: store,
		Hasher:      hasher,
		Binding:     binding,
		Codec:       codec,
		Encrypt:     opts.encrypt,
		Limiter:     limiter,
	})
	if err != nil {
		return err
	}
	useTLS := opts.tlsCert != ""
	realmOpts := []api.Option{
		api.InsecureCookie(!useTLS),
		api.TrustProxy(opts.trustProxy),
		api.AllowRegister(opts.allowRegister),
		api.StrictTransport(useTLS),
	}
	if opts.upstream != "" {
		target, err := url.Parse(opts.upstream)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return fmt.Errorf("invalid upstream url %q", opts.upstream)
		}
		realmOpts = append(realmOpts, api.Upstream(upstream.Handler(target)))
	}
	realm := api.NewRealm(g, realmOpts...)
	handler := logutil.Requests(realm.Routes())

	log.Info().
		Str("sessions", opts.sessions).
		Str("store", opts.store.Kind).
		Str("upstream", opts.upstream).
		Bool("encrypt", opts.encrypt).
		Int("rateLimitMax", limiter.Max()).
		Dur("rateLimitWindow", limiter.Window()).
		Msg("Doorman configured")
	if useTLS {
		return httpserver.ServeTLS(ctx, opts.bind, opts.tlsCert, opts.tlsKey, handler)
	}
	return httpserver.Serve(ctx, opts.bind, handler)
}

func newCodec(opts *options) (*cookie.Codec, *cookie.Key, error) {
	signKey, err := cookie.KeyFromEnv(opts.cookieSecret, os.Getenv, os.Setenv)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to read cookie secret, generate one with 'doorman keys generate', cause %w", err)
	}
	var encKey *cookie.Key
	if opts.encrypt {
		passphrase, err := cookie.PassphraseFromEnv(opts.encryptionKey, os.Getenv, os.Setenv)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to read cookie encryption passphrase, cause %w", err)
		}
		salt := signKey.Subkey("cookie-encryption-salt")
		encKey, err = cookie.DeriveKey(passphrase, salt[:])
		salt.Zero()
		for i := range passphrase {
			passphrase[i] = 0
		}
		if err != nil {
			return nil, nil, err
		}
		defer encKey.Zero()
	}
	codec, err := cookie.New(signKey, encKey)
	if err != nil {
		return nil, nil, err
	}
	return codec, signKey, nil
}

func newBinding(ctx context.Context, opts *options, signKey *cookie.Key) (gate.Binding, func() error, error) {
	noop := func() error { return nil }
	switch opts.sessions {
	case "memory":
		store := session.NewMemory()
		if opts.pruneInterval > 0 {
			go store.RunJanitor(ctx, opts.pruneInterval)
		}
		return gate.SessionBinding(store, opts.sessionTTL), noop, nil
	case "bigcache":
		store, err := session.NewBigCache(opts.sessionTTL)
		if err != nil {
			return nil, nil, err
		}
		return gate.SessionBinding(store, opts.sessionTTL), store.Close, nil
	case "token":
		tokenKey := signKey.Subkey("session-tokens")
		defer tokenKey.Zero()
		store, err := session.NewTokens(tokenKey[:], opts.sessionTTL)
		if err != nil {
			return nil, nil, err
		}
		return gate.SessionBinding(store, opts.sessionTTL), store.Close, nil
	case "direct":
		return gate.DirectBinding(session.NewPrincipalSet()), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown session kind %q, expecting memory, bigcache, token or direct", opts.sessions)
}
