// cmd/container.go
//
// Root composition root. Owns infrastructure (job store, bridge, media
// storage, alerts) and wires the dispatch services. This is the only
// place that knows about ALL modules.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"

	"github.com/mchuluq/whatsapp-microservice/pkg/alertx"
	"github.com/mchuluq/whatsapp-microservice/pkg/alertx/alertxconsole"
	"github.com/mchuluq/whatsapp-microservice/pkg/alertx/alertxses"
	"github.com/mchuluq/whatsapp-microservice/pkg/config"
	"github.com/mchuluq/whatsapp-microservice/pkg/fsx"
	"github.com/mchuluq/whatsapp-microservice/pkg/fsx/fsxlocal"
	"github.com/mchuluq/whatsapp-microservice/pkg/fsx/fsxs3"
	"github.com/mchuluq/whatsapp-microservice/pkg/httpapi"
	"github.com/mchuluq/whatsapp-microservice/pkg/logx"
	"github.com/mchuluq/whatsapp-microservice/pkg/media"
	"github.com/mchuluq/whatsapp-microservice/pkg/message/msgsrv"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue/queuemem"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue/queuepg"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue/queueredis"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue/queuesrv"
	"github.com/mchuluq/whatsapp-microservice/pkg/wabridge"
	"github.com/mchuluq/whatsapp-microservice/pkg/wabridge/wabridgehttp"
	"github.com/mchuluq/whatsapp-microservice/pkg/wabridge/wabridgesim"
	"github.com/redis/go-redis/v9"
)

// Container holds shared infrastructure and the composed services.
type Container struct {
	Config *config.Config

	// Infrastructure
	Store        queue.Store
	Bridge       wabridge.Bridge
	MediaStorage fsx.FileSystem
	Alerts       alertx.Notifier

	// Dispatch core
	Registry *queue.Registry
	Resolver *media.Resolver

	// Services and HTTP surface
	Messages *msgsrv.MessageService
	Queues   *queuesrv.QueueService
	Handlers *httpapi.Handlers
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure — job store, bridge, media storage, alerts
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")

	c.initStore()
	c.initBridge()
	c.initMediaStorage()
	c.initAlerts()

	logx.Info("✅ Infrastructure initialized")
}

// initStore opens the configured job store. Each store owns its
// connection; Cleanup closes it through queue.Store.
func (c *Container) initStore() {
	switch c.Config.Store.Driver {
	case "postgres":
		db, err := queuepg.Connect(context.Background(),
			c.Config.Database.DSN(),
			c.Config.Database.MaxOpenConns,
			c.Config.Database.MaxIdleConns,
			c.Config.Database.ConnMaxLifetime,
		)
		if err != nil {
			logx.Fatalf("Failed to connect to database: %v", err)
		}
		store := queuepg.New(db)
		if err := store.Migrate(context.Background()); err != nil {
			logx.Fatalf("Failed to migrate dispatch tables: %v", err)
		}
		c.Store = store
		logx.Infof("  ✅ Postgres job store connected (db: %s)", c.Config.Database.Name)

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Address(),
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			logx.Fatalf("Failed to connect to Redis: %v", err)
		}
		c.Store = queueredis.New(rdb)
		logx.Infof("  ✅ Redis job store connected (addr: %s)", c.Config.Redis.Address())

	case "memory":
		c.Store = queuemem.New()
		logx.Warn("  ⚠️ In-memory job store configured; jobs are lost on restart")

	default:
		logx.Fatalf("Unknown STORE_DRIVER: %s (use 'memory', 'redis' or 'postgres')", c.Config.Store.Driver)
	}
}

func (c *Container) initBridge() {
	switch c.Config.Bridge.Provider {
	case "http":
		if c.Config.Bridge.Token == "" {
			logx.Warn("  ⚠️ WA_BRIDGE_TOKEN is empty; bridge requests go out unauthenticated")
		}
		c.Bridge = wabridgehttp.New(c.Config.Bridge.URL, c.Config.Bridge.Token, nil)
		logx.Infof("  ✅ HTTP bridge configured (url: %s)", c.Config.Bridge.URL)

	case "sim":
		c.Bridge = wabridgesim.New()
		logx.Warn("  ⚠️ Simulated bridge configured; messages are not delivered")

	default:
		logx.Fatalf("Unknown WA_BRIDGE_PROVIDER: %s (use 'sim' or 'http')", c.Config.Bridge.Provider)
	}
}

func (c *Container) initMediaStorage() {
	switch c.Config.Media.Storage {
	case "s3":
		awsCfg, err := awsConfig.LoadDefaultConfig(context.TODO(),
			awsConfig.WithRegion(c.Config.Media.AWSRegion))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config: %v", err)
		}
		c.MediaStorage = fsxs3.NewS3FileSystem(s3.NewFromConfig(awsCfg), c.Config.Media.Bucket, "")
		logx.Infof("  ✅ S3 media storage configured (bucket: %s, region: %s)",
			c.Config.Media.Bucket, c.Config.Media.AWSRegion)

	case "local":
		localFS, err := fsxlocal.NewLocalFileSystem(c.Config.Media.Dir)
		if err != nil {
			logx.Fatalf("Failed to initialize local media storage: %v", err)
		}
		c.MediaStorage = localFS
		logx.Infof("  ✅ Local media storage configured (path: %s)", localFS.GetBasePath())

	default:
		logx.Fatalf("Unknown MEDIA_STORAGE: %s (use 'local' or 's3')", c.Config.Media.Storage)
	}
}

func (c *Container) initAlerts() {
	switch c.Config.Alert.Provider {
	case "ses":
		if len(c.Config.Alert.To) == 0 {
			logx.Fatalf("ALERT_TO is required for the ses alert provider")
		}
		awsCfg, err := awsConfig.LoadDefaultConfig(context.TODO(),
			awsConfig.WithRegion(c.Config.Alert.AWSRegion))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config: %v", err)
		}
		from := c.Config.Alert.FromAddress
		if c.Config.Alert.FromName != "" {
			from = fmt.Sprintf("%s <%s>", c.Config.Alert.FromName, c.Config.Alert.FromAddress)
		}
		c.Alerts = alertxses.New(ses.NewFromConfig(awsCfg), from, c.Config.Alert.To)
		logx.Infof("  ✅ SES alerts configured (to: %v)", c.Config.Alert.To)

	case "console":
		c.Alerts = alertxconsole.New()
		logx.Info("  ✅ Console alerts configured")

	case "none":
		logx.Info("  ✅ Alerts disabled")

	default:
		logx.Fatalf("Unknown ALERT_PROVIDER: %s (use 'none', 'console' or 'ses')", c.Config.Alert.Provider)
	}
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	logx.Info("📦 Initializing modules...")

	options := []queue.Option{
		queue.WithMaxAttempts(c.Config.Queue.MaxAttempts),
		queue.WithBackoffBase(c.Config.Queue.BackoffBase),
		queue.WithPacing(c.Config.Queue.PacingMin, c.Config.Queue.PacingMax),
		queue.WithClaimTimeout(c.Config.Queue.ClaimTimeout),
		queue.WithRetention(c.Config.Queue.Retention),
	}
	if c.Config.Queue.EnqueueRate > 0 {
		options = append(options, queue.WithEnqueueRate(c.Config.Queue.EnqueueRate, c.Config.Queue.EnqueueBurst))
	}
	if c.Alerts != nil {
		options = append(options, queue.WithAlerts(c.Alerts))
	}
	c.Registry = queue.NewRegistry(c.Store, c.Bridge, options...)

	c.Resolver = media.New(
		media.WithStorage(c.MediaStorage),
		media.WithSnapshot(c.Config.Media.SnapshotURLs),
		media.WithMaxSize(c.Config.Media.MaxSize),
		media.WithPresignTTL(c.Config.Media.URLTTL),
	)

	c.Messages = msgsrv.NewMessageService(c.Registry, c.Resolver)
	c.Queues = queuesrv.NewQueueService(c.Registry, c.Store)
	c.Handlers = httpapi.NewHandlers(c.Messages, c.Queues, c.Store, getEnv("APP_VERSION", "1.0.0"))

	logx.Infof("  ✅ Dispatch queues configured (attempts: %d, pacing: %s–%s)",
		c.Config.Queue.MaxAttempts, c.Config.Queue.PacingMin, c.Config.Queue.PacingMax)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// StartBackgroundServices requeues jobs stranded by an earlier crash and
// restarts a worker for every unit the store knows about.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	logx.Info("🔄 Starting background services...")

	if err := c.Registry.Recover(ctx); err != nil {
		logx.Fatalf("Failed to recover dispatch queues: %v", err)
	}
	logx.Infof("  ✅ Recovered %d unit queue(s)", len(c.Registry.List()))
}

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Registry.Shutdown(ctx); err != nil {
		logx.Errorf("Error shutting down dispatch queues: %v", err)
	} else {
		logx.Info("  ✅ Dispatch workers stopped")
	}

	if err := c.Store.Close(); err != nil {
		logx.Errorf("Error closing job store: %v", err)
	} else {
		logx.Info("  ✅ Job store closed")
	}

	logx.Info("✅ Cleanup complete")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
