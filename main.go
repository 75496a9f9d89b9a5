package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"subhunt/internal/api"
	"subhunt/internal/config"
	"subhunt/internal/fuzzer"
	"subhunt/internal/history"
	"subhunt/internal/logger"
	"subhunt/internal/probe"
	"subhunt/internal/report"
	"subhunt/internal/results"
	"subhunt/internal/screenshot"
	"subhunt/internal/takeover"
	"subhunt/internal/target"
	"subhunt/internal/updater"
	"subhunt/internal/wordlist"
	"subhunt/internal/zonetransfer"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath    = flag.String("config", "", "YAML config file")
		wordlistPath  = flag.String("w", "", "wordlist file with one subdomain label per line")
		workers       = flag.Int("c", 0, "number of concurrent workers")
		timeoutSec    = flag.Int("t", 0, "per-probe timeout in seconds")
		output        = flag.String("o", "", "write results to file")
		dnsOnly       = flag.Bool("dns-only", false, "only resolve DNS, skip HTTP probing")
		httpOnly      = flag.Bool("http-only", false, "probe HTTP directly without a DNS pre-check")
		keepHost      = flag.Bool("keep-host", false, "use the target exactly as given instead of reducing to the registrable domain")
		dnsServer     = flag.String("dns", "", "DNS server to resolve against (host or host:port)")
		userAgent     = flag.String("ua", "", "User-Agent header for HTTP probes")
		logLevel      = flag.String("v", "", "log level (debug, info, warn, error)")
		database      = flag.String("db", "", "record the scan in a SQLite history database at this path")
		apiEnabled    = flag.Bool("api", false, "serve live status and results over HTTP")
		apiPort       = flag.Int("api-port", 0, "port for the API server")
		takeoverScan  = flag.Bool("takeover", false, "check discovered hosts for subdomain takeover")
		zoneTransfer  = flag.Bool("zt", false, "test the domain's nameservers for open zone transfers")
		slackWebhook  = flag.String("slack", "", "Slack webhook URL for takeover notifications")
		screenshots   = flag.Bool("screenshot", false, "capture screenshots of takeover findings")
		screenshotDir = flag.String("screenshot-dir", "", "directory for screenshots")
		showVersion   = flag.Bool("version", false, "print version and exit")
		checkUpdate   = flag.Bool("update", false, "check for a newer release and exit")
		doUpgrade     = flag.Bool("upgrade", false, "download and install the latest release")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("subhunt v%s\n", version)
		return 0
	}
	if *checkUpdate || *doUpgrade {
		return runUpdater(*doUpgrade)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "subhunt: %v\n", err)
			return 1
		}
	}
	// Flags the user set explicitly win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "w":
			cfg.Wordlist = *wordlistPath
		case "c":
			cfg.Workers = *workers
		case "t":
			cfg.TimeoutSeconds = *timeoutSec
		case "o":
			cfg.Output = *output
		case "dns-only":
			cfg.DNSOnly = *dnsOnly
		case "http-only":
			cfg.HTTPOnly = *httpOnly
		case "keep-host":
			cfg.KeepHost = *keepHost
		case "dns":
			cfg.DNSServer = *dnsServer
		case "ua":
			cfg.UserAgent = *userAgent
		case "v":
			cfg.LogLevel = *logLevel
		case "db":
			cfg.Database = *database
		case "api":
			cfg.API = *apiEnabled
		case "api-port":
			cfg.APIPort = *apiPort
		case "takeover":
			cfg.Takeover = *takeoverScan
		case "zt":
			cfg.ZoneTransfer = *zoneTransfer
		case "slack":
			cfg.SlackWebhook = *slackWebhook
		case "screenshot":
			cfg.Screenshots = *screenshots
		case "screenshot-dir":
			cfg.ScreenshotDir = *screenshotDir
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "subhunt: %v\n", err)
		return 1
	}

	if flag.NArg() != 1 {
		usage()
		return 2
	}

	log, closeLog := logger.New("logs", cfg.LogLevel)
	defer closeLog()

	domain, err := resolveTarget(flag.Arg(0), cfg.KeepHost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "subhunt: %v\n", err)
		return 1
	}

	words, err := wordlist.Load(cfg.Wordlist)
	if err != nil {
		switch {
		case errors.Is(err, wordlist.ErrNotFound):
			fmt.Fprintf(os.Stderr, "subhunt: wordlist %s does not exist\n", cfg.Wordlist)
		case errors.Is(err, wordlist.ErrEmpty):
			fmt.Fprintf(os.Stderr, "subhunt: wordlist %s contains no candidates\n", cfg.Wordlist)
		default:
			fmt.Fprintf(os.Stderr, "subhunt: %v\n", err)
		}
		return 1
	}

	mode := fuzzer.ModeFull
	switch {
	case cfg.HTTPOnly:
		mode = fuzzer.ModeHTTPOnly
	case cfg.DNSOnly:
		mode = fuzzer.ModeDNSOnly
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	console := report.NewConsole(os.Stdout, len(words))
	console.Banner(version)
	console.Box("Run Configuration", []report.Row{
		{Key: "Target", Value: domain},
		{Key: "Wordlist", Value: fmt.Sprintf("%s (%d candidates)", cfg.Wordlist, len(words))},
		{Key: "Workers", Value: strconv.Itoa(cfg.Workers)},
		{Key: "Timeout", Value: cfg.Timeout().String()},
		{Key: "Mode", Value: mode.String()},
	})

	prober := probe.New(probe.Config{
		Timeout:   cfg.Timeout(),
		MaxConns:  cfg.Workers,
		DNSServer: cfg.DNSServer,
		UserAgent: cfg.UserAgent,
	})

	fz := fuzzer.New(fuzzer.Config{
		Domain:  domain,
		Workers: cfg.Workers,
		Mode:    mode,
	}, prober, console, log)

	if cfg.API {
		srv := api.New(cfg.APIPort, fz.Stats, fz.Snapshot, log)
		srv.Start()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	start := time.Now()
	table, runErr := fz.Run(ctx, words)
	cancelled := runErr != nil

	console.Finish()
	console.Summary(len(table), time.Since(start), cancelled)

	if cfg.Output != "" {
		if err := results.Save(cfg.Output, table); err != nil {
			// The scan itself succeeded; a failed save doesn't void it.
			fmt.Fprintf(os.Stderr, "subhunt: saving results: %v\n", err)
			log.Error("saving results", "path", cfg.Output, "error", err)
		} else {
			fmt.Printf("Results written to %s\n", cfg.Output)
		}
	}

	if cfg.Database != "" {
		recordHistory(cfg.Database, domain, len(words), table, log)
	}

	if cancelled {
		log.Info("run cancelled", "domain", domain, "found", len(table))
		return 130
	}

	if cfg.Takeover && len(table) > 0 {
		runTakeover(ctx, cfg, console, table.Hosts(), log)
	}
	if cfg.ZoneTransfer {
		runZoneTransfer(ctx, cfg, console, domain, log)
	}
	return 0
}

// resolveTarget turns the raw CLI argument into the domain to enumerate
// against. By default the registrable domain is used; keep-host preserves the
// hostname exactly as given.
func resolveTarget(raw string, keepHost bool) (string, error) {
	if keepHost {
		host, err := target.Hostname(raw)
		if err != nil {
			return "", err
		}
		if !target.ValidHostname(host) {
			return "", fmt.Errorf("invalid target host %q", host)
		}
		return host, nil
	}
	domain, err := target.Normalize(raw)
	if err != nil {
		return "", err
	}
	if !target.Validate(domain) {
		return "", fmt.Errorf("invalid target domain %q", domain)
	}
	return domain, nil
}

func recordHistory(path, domain string, total int, table results.Table, log *slog.Logger) {
	store, err := history.Open(path)
	if err != nil {
		log.Error("opening history database", "path", path, "error", err)
		return
	}
	defer store.Close()

	scanID, err := store.BeginScan(domain, total)
	if err != nil {
		log.Error("recording scan", "error", err)
		return
	}
	if err := store.RecordTable(scanID, table); err != nil {
		log.Error("recording findings", "error", err)
	}
}

func runTakeover(ctx context.Context, cfg config.Config, console *report.Console, hosts []string, log *slog.Logger) {
	tCfg := takeover.Config{
		Timeout:      cfg.Timeout(),
		SlackWebhook: cfg.SlackWebhook,
	}
	if cfg.Screenshots {
		dir := cfg.ScreenshotDir
		tCfg.Screenshot = func(ctx context.Context, url string) (string, error) {
			return screenshot.Capture(ctx, url, dir, 30*time.Second)
		}
	}
	scanner, err := takeover.New(tCfg, log)
	if err != nil {
		log.Error("takeover scan setup", "error", err)
		return
	}

	fmt.Printf("\nChecking %d host(s) for subdomain takeover...\n", len(hosts))
	findings := scanner.Scan(ctx, hosts)
	if len(findings) == 0 {
		fmt.Println("No takeover-vulnerable hosts found.")
		return
	}
	for _, f := range findings {
		rows := []report.Row{
			{Key: "Host", Value: f.Host},
			{Key: "Service", Value: f.Service},
			{Key: "CNAME", Value: f.CNAME},
			{Key: "Status", Value: strconv.Itoa(f.Status)},
			{Key: "Fingerprint", Value: f.Fingerprint},
		}
		if f.PageTitle != "" {
			rows = append(rows, report.Row{Key: "Title", Value: f.PageTitle})
		}
		if f.Screenshot != "" {
			rows = append(rows, report.Row{Key: "Screenshot", Value: f.Screenshot})
		}
		console.Box("Takeover Candidate", rows)
	}
}

func runZoneTransfer(ctx context.Context, cfg config.Config, console *report.Console, domain string, log *slog.Logger) {
	fmt.Printf("\nTesting %s nameservers for open zone transfers...\n", domain)
	rep, err := zonetransfer.New(domain, cfg.Timeout(), log).Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "subhunt: zone transfer check: %v\n", err)
		return
	}
	if len(rep.Vulnerable) == 0 {
		fmt.Println("All nameservers refused zone transfers.")
		return
	}
	console.Box("Zone Transfer", []report.Row{
		{Key: "Vulnerable", Value: strings.Join(rep.Vulnerable, ", ")},
		{Key: "Leaked hosts", Value: strconv.Itoa(len(rep.Hosts))},
	})
	for _, h := range rep.Hosts {
		fmt.Printf("  %s\n", h)
	}
}

func runUpdater(upgrade bool) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if upgrade {
		if err := updater.Upgrade(ctx, nil, updater.ReleaseURL, version); err != nil {
			fmt.Fprintf(os.Stderr, "subhunt: %v\n", err)
			return 1
		}
		fmt.Println("subhunt upgraded successfully")
		return 0
	}

	latest, hasUpdate, err := updater.Check(ctx, nil, updater.ReleaseURL, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "subhunt: %v\n", err)
		return 1
	}
	if hasUpdate {
		fmt.Printf("A newer version is available: v%s (running v%s). Run with -upgrade to install.\n", latest, version)
	} else {
		fmt.Printf("subhunt v%s is up to date\n", version)
	}
	return 0
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: subhunt [options] <domain>

Enumerate subdomains of <domain> with a wordlist, resolving DNS and probing
HTTP(S) concurrently.

Options:
`)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  subhunt -w words.txt example.com
  subhunt -w words.txt -c 200 -o found.txt example.com
  subhunt -w words.txt -dns-only example.com
  subhunt -w words.txt -takeover -zt example.com
`)
}
