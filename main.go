package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agrofresa/fresachain/app"
	"github.com/agrofresa/fresachain/assets"
	appconfig "github.com/agrofresa/fresachain/config"
	"github.com/agrofresa/fresachain/contracts"
	"github.com/agrofresa/fresachain/repository"
	"github.com/agrofresa/fresachain/server"
	"github.com/agrofresa/fresachain/srvreg"

	cfg "github.com/cometbft/cometbft/config"
	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	nm "github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	cmtrpc "github.com/cometbft/cometbft/rpc/client/local"
	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/viper"
)

var (
	homeDir  string
	httpPort string
)

func init() {
	flag.StringVar(&homeDir, "cmt-home", "", "Path to the CometBFT config directory (overrides FRESACHAIN_CMT_HOME)")
	flag.StringVar(&httpPort, "http-port", "", "HTTP web server port (overrides FRESACHAIN_HTTP_PORT)")
}

func main() {
	flag.Parse()

	appCfg := appconfig.LoadConfig()
	if homeDir != "" {
		appCfg.CometHome = homeDir
	}
	if httpPort != "" {
		appCfg.HTTPPort = httpPort
	}
	if err := appCfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Println("=== Starting Fresachain Consensus Node ===")
	log.Printf("Home Directory: %s", appCfg.CometHome)
	log.Printf("HTTP Port: %s", appCfg.HTTPPort)

	// Load CometBFT configuration
	config := cfg.DefaultConfig()
	config.SetRoot(appCfg.CometHome)
	viper.SetConfigFile(fmt.Sprintf("%s/%s", appCfg.CometHome, "config/config.toml"))
	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Reading config: %v", err)
	}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("Decoding config: %v", err)
	}
	if err := config.ValidateBasic(); err != nil {
		log.Fatalf("Invalid configuration data: %v", err)
	}

	// Connect to the PostgreSQL mirror
	repo := repository.NewRepository()
	log.Printf("Connecting to PostgreSQL: %s:%s/%s", appCfg.DatabaseHost, appCfg.DatabasePort, appCfg.DatabaseName)
	repo.ConnectDB(appCfg.GetDSN())

	// Open Badger for ledger state
	badgerPath := filepath.Join(appCfg.CometHome, "badger")
	db, err := badger.Open(badger.DefaultOptions(badgerPath))
	if err != nil {
		log.Fatalf("Opening badger database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Fatalf("Closing badger database: %v", err)
		}
	}()

	// Create logger
	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	logger, err = cmtflags.ParseLogLevel(config.LogLevel, logger, cfg.DefaultLogLevel)
	if err != nil {
		log.Fatalf("Failed to parse log level: %v", err)
	}

	// Wire the contract set with the bootstrap admin
	bootstrapAdmin := assets.User{
		Name:    appCfg.AdminName,
		Role:    assets.RoleAdmin,
		Address: appCfg.AdminAddress,
	}
	contractSet := contracts.NewSet(bootstrapAdmin, time.Now)

	// Create ABCI Application
	abciApp := app.NewABCIApplication(db, contractSet, logger)

	// Initialize Service Registry
	serviceRegistry := srvreg.NewServiceRegistry(repo, db, contractSet, logger)
	serviceRegistry.RegisterDefaultServices()

	// Load private validator
	pv := privval.LoadFilePV(
		config.PrivValidatorKeyFile(),
		config.PrivValidatorStateFile(),
	)

	// Load node key for P2P networking
	nodeKey, err := p2p.LoadNodeKey(config.NodeKeyFile())
	if err != nil {
		log.Fatalf("Failed to load node's key: %v", err)
	}

	// Initialize CometBFT node
	node, err := nm.NewNode(
		context.Background(),
		config,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(abciApp),
		nm.DefaultGenesisDocProviderFunc(config),
		cfg.DefaultDBProvider,
		nm.DefaultMetricsProvider(config.Instrumentation),
		logger,
	)
	if err != nil {
		log.Fatalf("Creating CometBFT node: %v", err)
	}

	abciApp.SetNodeID(string(node.NodeInfo().ID()))
	logger.Info("Node initialized", "node_id", string(node.NodeInfo().ID()))

	// Create RPC client and hand it to the repository
	rpcClient := cmtrpc.New(node)
	repo.SetupRpcClient(rpcClient)

	// Start CometBFT node
	logger.Info("Starting CometBFT node...")
	err = node.Start()
	if err != nil {
		log.Fatalf("Starting CometBFT node: %v", err)
	}
	defer func() {
		logger.Info("Stopping CometBFT node...")
		node.Stop()
		node.Wait()
	}()

	// Start Web Server
	logger.Info("Starting web server...")
	webserver, err := server.NewWebServer(abciApp, appCfg.HTTPPort, logger, node, serviceRegistry, repo)
	if err != nil {
		log.Fatalf("Creating web server: %v", err)
	}

	err = webserver.Start()
	if err != nil {
		log.Fatalf("Starting HTTP server: %v", err)
	}

	logger.Info("=== Node Successfully Started ===")
	logger.Info("HTTP API", "url", fmt.Sprintf("http://localhost:%s", appCfg.HTTPPort))
	logger.Info("CometBFT RPC", "url", fmt.Sprintf("http://localhost:%s", extractPortFromAddress(config.RPC.ListenAddress)))
	logger.Info("Node ID", "id", string(node.NodeInfo().ID()))

	logger.Info("Available Endpoints:")
	logger.Info("  POST /api/lotes - Store a seed lot")
	logger.Info("  POST /api/lotes/sembrar - Plant a stored seed lot")
	logger.Info("  POST /api/cosechas - Record a harvest")
	logger.Info("  POST /api/paquetes - Pack a harvest into packages")
	logger.Info("  POST /api/paquetes/compra-mayoreo - Wholesale purchase")
	logger.Info("  POST /api/paquetes/compra-menudeo - Retail purchase")
	logger.Info("  POST /api/usuarios - Register a user")
	logger.Info("  GET  /api/tx/{hash} - Get transaction details")
	logger.Info("  GET  /api/status - Node status")
	logger.Info("  GET  /debug - Debug information")

	// Wait for interrupt signal to gracefully shut down
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Received shutdown signal, shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err = webserver.Shutdown(ctx)
	if err != nil {
		logger.Error("Error shutting down HTTP web server", "err", err)
	}
	logger.Info("Node gracefully stopped")
}

// extractPortFromAddress extracts the port from an address string
func extractPortFromAddress(address string) string {
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == ':' {
			return address[i+1:]
		}
	}
	return ""
}
