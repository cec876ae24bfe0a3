package bootstrap

import (
	"log"
	"time"

	"go.uber.org/dig"

	"CipherDB/internal/application/service"
	"CipherDB/internal/domain"
	"CipherDB/internal/platform/api/zmq"
	"CipherDB/internal/platform/config"
	"CipherDB/internal/platform/messaging/zeromq/listener"
	"CipherDB/internal/platform/messaging/zeromq/publisher"
	"CipherDB/internal/platform/repository"
	"CipherDB/internal/platform/repository/btreestore"
	"CipherDB/internal/platform/server"
	"CipherDB/internal/platform/server/handler/database"
	"CipherDB/internal/platform/server/handler/query"
)

func Run() (bool, error) {
	container := dig.New()
	serviceConstructors := []interface{}{
		config.LoadConfig,
		domain.NewDbHandleManager,
		domain.NewCollatorRegistry,
		commitPublisher,
		commitListener,
		engine,
		service.NewOpenDatabaseService,
		service.NewCloseDatabaseService,
		service.NewDeleteDatabaseService,
		service.NewRawQueryService,
		service.NewExecuteStatementService,
		service.NewGetVersionService,
		service.NewSetVersionService,
		service.NewDatabaseInfoService,
		service.NewSetLocaleService,
		database.NewDatabaseHandler,
		query.NewQueryHandler,
		zmq.NewZmqApi,
		httpServer,
	}
	for _, constructor := range serviceConstructors {
		if err := container.Provide(constructor); err != nil {
			return false, err
		}
	}
	err := container.Invoke(func(s server.Server,
		pub *publisher.ZeroMQCommitPublisher,
		sub *listener.ZeromqCommitListener,
		api *zmq.HighPerformanceZmqApi,
		handles *domain.DbHandleManager) {
		if pub != nil {
			if err := pub.Initialize(); err != nil {
				return
			}
		}
		if sub != nil {
			go sub.Listen()
			defer sub.Close()
		}
		go api.Listen()
		defer handles.CloseAll()
		s.Run()
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// commitPublisher is nil when no feed endpoint is configured; commits
// then go unannounced.
func commitPublisher(cfg config.Config) *publisher.ZeroMQCommitPublisher {
	if cfg.CommitFeedBind == "" {
		return nil
	}
	return publisher.NewZeroMQCommitPublisher(cfg.CommitFeedBind)
}

// commitListener mirrors upstream commit feeds into the local log, so
// operators can follow writes happening on peer nodes.
func commitListener(cfg config.Config) *listener.ZeromqCommitListener {
	if len(cfg.CommitFeeds) == 0 {
		return nil
	}
	return listener.NewZeromqCommitListener(cfg.CommitFeeds, func(event domain.CommitEvent) {
		log.Printf("peer commit: db=%s tx=%d tables=%v frames=%d",
			event.Database, event.TxID, event.Tables, event.Frames)
	})
}

func engine(cfg config.Config, collators *domain.CollatorRegistry,
	pub *publisher.ZeroMQCommitPublisher) domain.Engine {
	var notifier domain.CommitNotifier
	if pub != nil {
		notifier = pub
	}
	return repository.NewSQLEngine(btreestore.Options{
		LockTimeout:         time.Duration(cfg.LockTimeoutMillis) * time.Millisecond,
		CheckpointThreshold: cfg.CheckpointThreshold,
		Collators:           collators,
		Notifier:            notifier,
	}, cfg.DataDirectory)
}

func httpServer(cfg config.Config,
	databaseHandler *database.DatabaseHandler,
	queryHandler *query.QueryHandler) server.Server {
	return server.NewServer("0.0.0.0", cfg.ServerPort, databaseHandler, queryHandler)
}
