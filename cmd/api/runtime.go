package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"canvasvault/api/internal/app"
	"canvasvault/api/internal/config"
	"canvasvault/api/internal/email"
	"canvasvault/api/internal/logger"
	"canvasvault/api/internal/search"
	"canvasvault/api/internal/session"
	"canvasvault/api/internal/settings"
	"canvasvault/api/internal/storage"
	"canvasvault/api/internal/store"
)

// runtime holds the process resources. Every database is opened and
// migrated once here, before anything serves requests.
type runtime struct {
	cfg      config.Config
	log      *logger.Logger
	localDB  *sql.DB
	remoteDB *sql.DB
	local    *store.LocalStore
	remote   *store.RemoteStore
	disk     *storage.Disk
	bucket   *storage.Bucket
	sessions *session.RedisStore
	meili    *search.Meili
	search   *search.Service
	settings *settings.Store
	mailer   *email.Service
}

func openRuntime(ctx context.Context, cfg config.Config, log *logger.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	db, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	rt.localDB = db
	if err := store.Migrate(ctx, db, store.DialectSQLite); err != nil {
		return nil, fmt.Errorf("migrate local database: %w", err)
	}
	rt.local = store.NewLocalStore(db)

	if rt.disk, err = storage.NewDisk(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("open data dir: %w", err)
	}
	rt.settings = settings.Open(cfg.SettingsPath)

	if cfg.RemoteConfigured() {
		remoteDB, err := store.OpenPostgres(ctx, cfg.RemoteDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open remote database: %w", err)
		}
		rt.remoteDB = remoteDB
		if err := store.Migrate(ctx, remoteDB, store.DialectPostgres); err != nil {
			return nil, fmt.Errorf("migrate remote database: %w", err)
		}
		rt.remote = store.NewRemoteStore(remoteDB)
		log.Info("remote database ready")
	}

	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		bucket, err := storage.NewBucket(storage.BucketConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("object storage: %w", err)
		}
		if err := bucket.EnsureBuckets(ctx); err != nil {
			log.Warn("ensure buckets failed", "error", err)
		}
		rt.bucket = bucket
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		sessions, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.sessions = sessions
	}

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		rt.meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
	}
	rt.search = search.NewService(rt.meili, search.NewHTTPEmbedder(0), log)

	rt.mailer = email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	ok = true
	return rt, nil
}

func (rt *runtime) service() *app.Service {
	return app.New(app.Deps{
		Config:   rt.cfg,
		Logger:   rt.log,
		Settings: rt.settings,
		Local:    rt.local,
		Disk:     rt.disk,
		Remote:   rt.remote,
		Bucket:   rt.bucket,
		Sessions: rt.sessions,
		Search:   rt.search,
		Mailer:   rt.mailer,
	})
}

func (rt *runtime) Close() {
	if rt.meili != nil {
		rt.meili.Close()
	}
	if rt.sessions != nil {
		_ = rt.sessions.Close()
	}
	if rt.remoteDB != nil {
		_ = rt.remoteDB.Close()
	}
	if rt.localDB != nil {
		_ = rt.localDB.Close()
	}
}
