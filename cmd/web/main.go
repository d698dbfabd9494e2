package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"formbuilder/internal/app"
	"formbuilder/internal/db"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg := app.LoadConfig()

	if cfg.AppEnv == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetLevel(logrus.DebugLevel)
	}

	dbConn, err := db.OpenPostgresWithConfig(context.Background(), cfg.DBDSN, db.PostgresConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		logrus.WithError(err).Error("database error")
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := db.Migrate(dbConn); err != nil {
		logrus.WithError(err).Error("migration error")
		os.Exit(1)
	}

	r := app.NewRouter(cfg, dbConn)

	logrus.WithField("addr", cfg.HTTPAddr).Info("formbuilder web listening")
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		logrus.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}
