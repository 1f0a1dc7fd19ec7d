package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vendo/internal/browser"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/ebay"
	"github.com/ternarybob/vendo/internal/export"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/scraper"
)

const (
	imagesFolderName      = "Product Images"
	screenshotsFolderName = "Screenshots"
	aggregateFileName     = "All Keywords.xlsx"
)

func main() {
	var (
		configPath   string
		keywordsPath string
		showVersion  bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&keywordsPath, "keywords", "", "Path to keywords file (overrides configuration)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	version := common.LoadVersionFromFile()

	if showVersion {
		fmt.Printf("vendo %s\n", common.GetFullVersion())
		return
	}

	if configPath == "" {
		configPath = findConfigFile()
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if keywordsPath != "" {
		config.Keywords.File = keywordsPath
	}

	logger := common.InitLogger(config)
	common.PrintBanner(version)

	logger.Info().
		Str("version", version).
		Str("environment", config.Environment).
		Msg("Starting Vendo")
	if configPath != "" {
		logger.Info().Str("config", configPath).Msg("Configuration loaded")
	}

	if err := run(config, logger); err != nil {
		logger.Error().Err(err).Msg("Run failed")
		os.Exit(1)
	}
}

// findConfigFile looks for a config file next to the executable, then in
// the working directory. An empty return means defaults only.
func findConfigFile() string {
	candidates := []string{"vendo.toml", "config.toml"}

	if execPath, err := os.Executable(); err == nil {
		dir := filepath.Dir(execPath)
		for _, name := range candidates {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	for _, name := range candidates {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

func run(config *common.Config, logger arbor.ILogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	runID := uuid.NewString()[:8]
	logger.Info().Str("run_id", runID).Msg("Run starting")

	keywords, err := readKeywords(config.Keywords.File, logger)
	if err != nil {
		return err
	}
	if len(keywords) == 0 {
		return fmt.Errorf("no keywords found in %s", config.Keywords.File)
	}
	logger.Info().
		Int("keywords", len(keywords)).
		Str("file", config.Keywords.File).
		Msg("Keywords loaded")

	runDir, err := common.RunDirectory(config.Output.Dir)
	if err != nil {
		return err
	}
	logger.Info().Str("dir", runDir).Msg("Run output directory created")

	var images *scraper.ImageService
	if config.Images.Enabled {
		imagesDir, err := common.Subfolder(runDir, imagesFolderName)
		if err != nil {
			return err
		}
		images, err = scraper.NewImageService(imagesDir, config.Images, logger)
		if err != nil {
			return err
		}
	}

	screenshotsDir := ""
	if config.Crawl.Screenshots {
		screenshotsDir, err = common.Subfolder(runDir, screenshotsFolderName)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(config.Cookies.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create cookies directory %s: %w", config.Cookies.Dir, err)
	}

	factory := browser.NewFactory(config.Browser, logger)
	pool, err := browser.NewSessionPool(ctx, factory, config.Browser.PoolSize, logger)
	if err != nil {
		return err
	}
	// The orchestrator cleans up on its own; this covers failures between
	// pool creation and the run. Cleanup is safe to call twice.
	defer pool.Cleanup()

	store := ebay.NewCookieStore(config.Cookies.Dir, logger)
	guard := ebay.NewGuard(store, factory, ebay.NewRecoveryCoordinator(), ebay.GuardConfig{
		RecoveryAttempts: config.Crawl.RecoveryAttempts,
		PollInterval:     config.Crawl.PollInterval,
		CookieKey:        config.Cookies.Key,
	}, logger)

	aggregate, err := export.NewWorkbook(filepath.Join(runDir, aggregateFileName), logger)
	if err != nil {
		return fmt.Errorf("failed to create aggregate workbook: %w", err)
	}

	newSink := func(keyword string) (interfaces.ResultSink, error) {
		return export.NewWorkbook(filepath.Join(runDir, fileNameFor(keyword)), logger)
	}

	taskConfig := scraper.TaskConfig{
		MaxRows:       config.Crawl.MaxRows,
		FetchAttempts: config.Crawl.FetchAttempts,
		RenderTimeout: config.Crawl.RenderTimeout,
		Screenshots:   config.Crawl.Screenshots,
	}

	orch := scraper.NewOrchestrator(pool, ebay.NewURLBuilder(nil), guard, images, screenshotsDir, taskConfig, newSink, aggregate, logger)
	report := orch.Run(ctx, keywords)

	// Thumbnails only exist to be embedded in the workbooks; the folder
	// is transient.
	if images != nil {
		if err := common.RemoveFolder(images.Dir()); err != nil {
			logger.Warn().Err(err).Msg("Error removing image folder")
		}
	}

	for key, rows := range report.Rows {
		logger.Info().
			Str("keyword", key.Keyword).
			Str("range", key.Range.String()).
			Str("outcome", report.Outcomes[key].String()).
			Int("rows", rows).
			Msg("Task summary")
	}
	if report.Errors > 0 {
		logger.Warn().
			Int("errors", report.Errors).
			Msg("Run finished with errors")
	}

	logger.Info().
		Str("run_id", runID).
		Str("dir", runDir).
		Str("elapsed", time.Since(started).String()).
		Msg("Run complete")
	return nil
}

const keywordsTemplate = `# One search keyword per line.
# Lines starting with # and blank lines are ignored.
`

// readKeywords reads the keywords file, skipping comments and blank
// lines. A missing file is created from a template so the user has
// something to fill in.
func readKeywords(path string, logger arbor.ILogger) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := os.WriteFile(path, []byte(keywordsTemplate), 0644); writeErr == nil {
				logger.Warn().Str("file", path).Msg("Keywords file created, add keywords and run again")
			}
			return nil, fmt.Errorf("keywords file %s did not exist", path)
		}
		return nil, fmt.Errorf("failed to open keywords file %s: %w", path, err)
	}
	defer file.Close()

	var keywords []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keywords = append(keywords, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keywords file %s: %w", path, err)
	}
	return keywords, nil
}

func fileNameFor(keyword string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	return replacer.Replace(keyword) + ".xlsx"
}
