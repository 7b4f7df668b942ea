package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pingcap-incubator/tinyds/kv/config"
	"github.com/pingcap-incubator/tinyds/kv/datastore"
	"github.com/pingcap-incubator/tinyds/kv/indexfile"
	"github.com/pingcap-incubator/tinyds/kv/server"
	"github.com/pingcap-incubator/tinyds/kv/storage"
	"github.com/pingcap-incubator/tinyds/kv/storage/leveldb_storage"
	"github.com/pingcap-incubator/tinyds/kv/storage/standalone_storage"
	"github.com/pingcap-incubator/tinyds/kv/util/logutil"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	appID      string
	addr       string
	engine     string
	dbPath     string
	indexPath  string
	trusted    bool
	requireIdx bool
)

const shutdownTimeout = 10 * time.Second

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	conf := config.NewDefaultConfig()
	if configPath != "" {
		if err := conf.LoadFile(configPath); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("app") {
		conf.AppID = appID
	}
	if flags.Changed("addr") {
		conf.Addr = addr
	}
	if flags.Changed("engine") {
		conf.Engine.Kind = engine
	}
	if flags.Changed("db-path") {
		conf.Engine.DBPath = dbPath
	}
	if flags.Changed("index-file") {
		conf.IndexFile = indexPath
	}
	if flags.Changed("trusted") {
		conf.Trusted = trusted
	}
	if flags.Changed("require-indexes") {
		conf.RequireIndexes = requireIdx
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Annotate(err, "invalid config")
	}
	return conf, nil
}

func newStorage(conf *config.Config) storage.Storage {
	switch conf.Engine.Kind {
	case config.EngineMem:
		return storage.NewMemStorage()
	case config.EngineLevelDB:
		return leveldb_storage.NewLevelDBStorage(conf)
	}
	return standalone_storage.NewStandAloneStorage(conf)
}

func serve(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logutil.InitLogger(&conf.Log); err != nil {
		return err
	}
	log.Info("config loaded", zap.String("app", conf.AppID), zap.String("addr", conf.Addr),
		zap.String("engine", conf.Engine.Kind), zap.Bool("trusted", conf.Trusted))

	kvEngine := newStorage(conf)
	if err := kvEngine.Start(); err != nil {
		return errors.Annotatef(err, "start %s engine", conf.Engine.Kind)
	}
	backend := storage.NewKVBackend(kvEngine)
	defer func() {
		if err := backend.Close(); err != nil {
			log.Error("close storage failed", zap.Error(err))
		}
	}()

	opts := datastore.OptionsFromConfig(conf)
	if conf.IndexFile != "" {
		opts.Indexes = indexfile.NewLoader(conf.IndexFile)
	}
	store, err := datastore.NewStore(backend, opts)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.NewServer(store)
	handleSignal(srv)
	if err := srv.Run(conf.Addr); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

func handleSignal(srv *server.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		sig := <-sigCh
		log.Info("got signal to exit", zap.Stringer("signal", sig))
		if err := srv.Close(shutdownTimeout); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
	}()
}

func checkConfig(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if conf.IndexFile != "" {
		indexes, err := indexfile.NewLoader(conf.IndexFile).ListCompositeIndexes(conf.AppID)
		if err != nil {
			return err
		}
		fmt.Printf("%d composite indexes in %s\n", len(indexes), conf.IndexFile)
	}
	fmt.Printf("config of app %s is valid\n", conf.AppID)
	return nil
}

func addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "config file path")
	flags.StringVar(&appID, "app", "", "app id served by this store")
	flags.StringVar(&addr, "addr", "", "http listen address")
	flags.StringVar(&engine, "engine", "", "storage engine: mem, badger or leveldb")
	flags.StringVar(&dbPath, "db-path", "", "data directory")
	flags.StringVar(&indexPath, "index-file", "", "index.yaml with composite index definitions")
	flags.BoolVar(&trusted, "trusted", false, "allow access to the data of any app")
	flags.BoolVar(&requireIdx, "require-indexes", false, "fail queries that need an undefined composite index")
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "tinyds-server",
		Short:        "A local datastore with an HTTP API",
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the datastore server",
		RunE:  serve,
	}
	addFlags(serveCmd)

	checkCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and index file, then exit",
		RunE:  checkConfig,
	}
	addFlags(checkCmd)

	rootCmd.AddCommand(serveCmd, checkCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
