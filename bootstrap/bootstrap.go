// Package bootstrap builds the configured backends shared by the server and
// the command line tools.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/raushankrgupta/nima-backend/config"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/notify"
	"github.com/raushankrgupta/nima-backend/storage"
	"github.com/raushankrgupta/nima-backend/store"
	"github.com/raushankrgupta/nima-backend/store/memstore"
	"github.com/raushankrgupta/nima-backend/store/mongostore"
)

// OpenStore connects the document store selected by STORE_BACKEND.
func OpenStore(ctx context.Context, log logging.Logger) (store.Store, error) {
	switch config.StoreBackend {
	case "memory":
		log.Warn(ctx, "using in-memory store, data is lost on restart")
		return memstore.New(), nil
	case "mongo", "":
		s, err := mongostore.Connect(ctx, config.MongoURI, config.DBName)
		if err != nil {
			return nil, err
		}
		log.Info(ctx, "connected to mongodb", "db", config.DBName)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", config.StoreBackend)
	}
}

// OpenFileStore builds the object storage selected by STORAGE_BACKEND.
func OpenFileStore(ctx context.Context, log logging.Logger) (storage.FileStore, error) {
	switch config.StorageBackend {
	case "s3", "":
		return storage.NewS3Store(ctx, storage.S3Options{
			Region:    config.AWSRegion,
			Bucket:    config.AWSBucketName,
			Endpoint:  config.S3Endpoint,
			AccessKey: config.S3AccessKey,
			SecretKey: config.S3SecretKey,
		})
	case "supabase":
		return storage.NewSupabaseStore(config.SupabaseURL, config.SupabaseKey, config.SupabaseBucket)
	case "memory":
		log.Warn(ctx, "using in-memory file storage, uploads are lost on restart")
		return storage.NewMemory("http://localhost:" + config.Port + "/files"), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", config.StorageBackend)
	}
}

// OpenNotifier sends email through SendGrid when a key is configured and
// only logs otherwise.
func OpenNotifier(ctx context.Context, log logging.Logger) (notify.Notifier, error) {
	if config.SendGridAPIKey == "" {
		log.Warn(ctx, "SENDGRID_API_KEY is not set, notifications are only logged")
		return notify.NewLogNotifier(log), nil
	}
	return notify.NewSendGridNotifier(config.SendGridAPIKey, config.NotifyFromEmail, log)
}
