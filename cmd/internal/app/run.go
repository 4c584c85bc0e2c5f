package app

import "context"

// Serve builds the App from cfg and serves until ctx is done.
func Serve(ctx context.Context, cfg Config) error {
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Error("startup.fail", "err", err)
		return err
	}
	return a.Run(ctx)
}
