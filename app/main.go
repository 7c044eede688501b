package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/joho/godotenv"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/caejd/jobdiary/app/jobinfo"
	"github.com/caejd/jobdiary/app/notify"
	"github.com/caejd/jobdiary/app/poller"
	"github.com/caejd/jobdiary/app/seed"
	"github.com/caejd/jobdiary/app/service"
	"github.com/caejd/jobdiary/app/store"
	"github.com/caejd/jobdiary/app/updater"
	"github.com/caejd/jobdiary/app/web"
)

// components selectable with --run
const (
	compPoller  = "poller"
	compUpdater = "updater"
	compWeb     = "web"
)

var opts struct {
	Run     []string `long:"run" env:"JOBDIARY_RUN" env-delim:"," choice:"poller" choice:"updater" choice:"web" description:"components to run, all if not set"`
	Seed    string   `long:"seed" env:"JOBDIARY_SEED" description:"load users and jobs from yaml file and exit"`
	EnvFile string   `long:"env-file" env:"JOBDIARY_ENV_FILE" description:"dotenv file with settings"`
	Dbg     bool     `long:"dbg" env:"JOBDIARY_DEBUG" description:"debug mode"`

	Store struct {
		Engine string `long:"engine" env:"ENGINE" choice:"sqlite" choice:"postgres" default:"sqlite" description:"database engine"`
		DSN    string `long:"dsn" env:"DSN" default:"jobdiary.db" description:"sqlite file or postgres connection string"`
	} `group:"store" namespace:"store" env-namespace:"JOBDIARY_STORE"`

	Poll struct {
		Dir          string        `long:"dir" env:"DIR" default:"/cae/poll" description:"directory with job log files"`
		Schedule     string        `long:"schedule" env:"SCHEDULE" default:"@every 5s" description:"poll schedule"`
		RecentWindow time.Duration `long:"recent" env:"RECENT" default:"24h" description:"jobs submitted within this window get status rechecks"`
		MaxRechecks  int           `long:"max-rechecks" env:"MAX_RECHECKS" default:"5" description:"limit of status re-resolution for moving job files"`
	} `group:"poll" namespace:"poll" env-namespace:"JOBDIARY_POLL"`

	Update struct {
		Schedule string `long:"schedule" env:"SCHEDULE" default:"@every 155s" description:"update schedule"`
	} `group:"update" namespace:"update" env-namespace:"JOBDIARY_UPDATE"`

	Resolve struct {
		Attempts int           `long:"attempts" env:"ATTEMPTS" default:"3" description:"status checks of recent jobs"`
		Delay    time.Duration `long:"delay" env:"DELAY" default:"1s" description:"pause between status checks"`
	} `group:"resolve" namespace:"resolve" env-namespace:"JOBDIARY_RESOLVE"`

	Web struct {
		Address       string        `long:"address" env:"ADDRESS" default:":8080" description:"web server listen address"`
		BaseURL       string        `long:"base-url" env:"BASE_URL" description:"base url path for reverse proxy, i.e. /diary"`
		PasswordHash  string        `long:"password-hash" env:"PASSWORD_HASH" description:"bcrypt hash of the web password, auth disabled if empty"`
		LoginTTL      time.Duration `long:"login-ttl" env:"LOGIN_TTL" default:"24h" description:"login session ttl"`
		FeedbackEmail string        `long:"feedback-email" env:"FEEDBACK_EMAIL" description:"feedback address shown on the about page"`
	} `group:"web" namespace:"web" env-namespace:"JOBDIARY_WEB"`

	Notify struct {
		SMTPHost     string        `long:"smtp-host" env:"SMTP_HOST" default:"localhost" description:"SMTP host"`
		SMTPPort     int           `long:"smtp-port" env:"SMTP_PORT" default:"25" description:"SMTP port"`
		SMTPUsername string        `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP user name"`
		SMTPPassword string        `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
		SMTPTLS      bool          `long:"smtp-tls" env:"SMTP_TLS" description:"enable SMTP TLS"`
		SMTPStartTLS bool          `long:"smtp-starttls" env:"SMTP_STARTTLS" description:"enable SMTP STARTTLS"`
		SMTPTimeOut  time.Duration `long:"smtp-timeout" env:"SMTP_TIMEOUT" default:"10s" description:"SMTP TCP connection timeout"`
		FromEmail    string        `long:"from" env:"FROM" description:"SMTP from email"`
		ToEmails     []string      `long:"to" env:"TO" description:"warning recipients, emails disabled if not set" env-delim:","`
		Backlog      int           `long:"backlog" env:"BACKLOG" default:"20" description:"recent log lines included in warnings"`
		Dedup        time.Duration `long:"dedup" env:"DEDUP" default:"15m" description:"same warning sent once per interval"`
		HostName     string        `long:"host" env:"HOSTNAME" description:"host name shown in warnings and pages"`
	} `group:"notify" namespace:"notify" env-namespace:"JOBDIARY_NOTIFY"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable logging to file"`
		Filename        string `long:"filename" env:"FILENAME" default:"jobdiary.log" description:"log file name"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max size of log file in megabytes"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of rotated files"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max days to keep rotated files, 0 keeps all"`
		EnabledCompress bool   `long:"compress" env:"COMPRESS" description:"compress rotated files"`
	} `group:"log" namespace:"log" env-namespace:"JOBDIARY_LOG"`
}

var revision = "unknown"

func main() {
	fmt.Printf("jobdiary %s\n", revision)

	if err := loadEnvFile(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	opts.Web.BaseURL = validateBaseURL(opts.Web.BaseURL)

	esc := makeEscalator(setupLogs())
	if esc != nil {
		defer esc.Wait()
	}

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals(cancel) // handle SIGQUIT, SIGINT and SIGTERM

	if opts.Seed != "" {
		if err := runSeed(ctx, opts.Seed); err != nil {
			log.Printf("[ERROR] seed failed, %v", err)
			os.Exit(1)
		}
		return
	}

	var panicLog log.L = log.Default()
	if esc != nil {
		panicLog = esc
	}
	if err := run(ctx, selected(opts.Run), panicLog); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
	log.Printf("[INFO] terminated")
}

// run starts the selected components and blocks until ctx is canceled or one of them fails.
// Each component gets its own store connection. Web request panics are reported to panicLog.
func run(ctx context.Context, comps []string, panicLog log.L) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resolver := jobinfo.NewResolver(opts.Resolve.Attempts, opts.Resolve.Delay)
	var pollLoop, updateLoop *service.Loop
	var loops []web.Component

	if slices.Contains(comps, compPoller) {
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore(st, compPoller)
		p := poller.New(poller.Params{Dir: opts.Poll.Dir, Store: st, Resolver: resolver,
			RecentWindow: opts.Poll.RecentWindow, MaxRechecks: opts.Poll.MaxRechecks})
		pollLoop = &service.Loop{Name: compPoller, Spec: opts.Poll.Schedule, Task: p.Poll}
		loops = append(loops, pollLoop)
	}

	if slices.Contains(comps, compUpdater) {
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore(st, compUpdater)
		u := &updater.Updater{Store: st, Resolver: resolver}
		updateLoop = &service.Loop{Name: compUpdater, Spec: opts.Update.Schedule, Task: u.Update}
		loops = append(loops, updateLoop)
	}

	var srv *web.Server
	if slices.Contains(comps, compWeb) {
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore(st, compWeb)
		cfg := web.Config{
			Store:         st,
			BaseURL:       opts.Web.BaseURL,
			Hostname:      makeHostName(),
			Version:       revision,
			FeedbackEmail: opts.Web.FeedbackEmail,
			PasswordHash:  opts.Web.PasswordHash,
			LoginTTL:      opts.Web.LoginTTL,
			Components:    loops,
			PanicLogger:   panicLog,
		}
		if pollLoop != nil {
			cfg.PollTrigger = pollLoop
		}
		if srv, err = web.New(cfg); err != nil {
			return err
		}
	}

	var errMu sync.Mutex
	var firstErr error
	fail := func(name string, err error) {
		errMu.Lock()
		defer errMu.Unlock()
		if firstErr == nil {
			firstErr = fmt.Errorf("%s failed: %w", name, err)
		}
		cancel()
	}

	gr := syncs.NewSizedGroup(len(comps), syncs.Context(ctx))
	for _, l := range []*service.Loop{pollLoop, updateLoop} {
		if l == nil {
			continue
		}
		gr.Go(func(ctx context.Context) {
			if err := l.Do(ctx); err != nil {
				fail(l.Name, err)
			}
		})
	}
	if srv != nil {
		gr.Go(func(ctx context.Context) {
			if err := srv.Run(ctx, opts.Web.Address); err != nil {
				fail(compWeb, err)
			}
		})
	}
	log.Printf("[INFO] started %s", strings.Join(comps, ", "))
	gr.Wait()
	return firstErr
}

func runSeed(ctx context.Context, fname string) error {
	f, err := seed.LoadFile(fname)
	if err != nil {
		return err
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st, "seed")
	res, err := seed.Apply(ctx, st, f)
	if err != nil {
		return err
	}
	log.Printf("[INFO] seeded %d users, %d jobs, %d base runs, %d jobs skipped", res.Users, res.Jobs, res.BaseRuns, res.Skipped)
	return nil
}

func openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.New(ctx, store.Engine(opts.Store.Engine), opts.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("can't open store: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store, name string) {
	if err := st.Close(); err != nil {
		log.Printf("[WARN] can't close %s store, %v", name, err)
	}
}

// selected returns components in start order, all of them if none requested
func selected(run []string) []string {
	all := []string{compPoller, compUpdater, compWeb}
	if len(run) == 0 {
		return all
	}
	res := make([]string, 0, len(all))
	for _, c := range all {
		if slices.Contains(run, c) {
			res = append(res, c)
		}
	}
	return res
}

// loadEnvFile loads dotenv file set with --env-file or JOBDIARY_ENV_FILE. It runs before flags
// parsing so the file can provide env values of other options. Variables set already are kept.
func loadEnvFile(args []string) error {
	fname := os.Getenv("JOBDIARY_ENV_FILE")
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, "--env-file="); ok {
			fname = v
			break
		}
		if a == "--env-file" && i+1 < len(args) {
			fname = args[i+1]
			break
		}
	}
	if fname == "" {
		return nil
	}
	if err := godotenv.Load(fname); err != nil {
		return fmt.Errorf("can't load env file %s: %w", fname, err)
	}
	return nil
}

// makeEscalator wraps log output with warning emails, returns nil if no recipients set
func makeEscalator(out io.Writer) *notify.Escalator {
	from := opts.Notify.FromEmail
	if from == "" {
		from = "jobdiary@" + makeHostName()
	}
	svc := notify.NewService(notify.Params{Host: makeHostName()}, notify.SendersParams{
		SMTPHost:     opts.Notify.SMTPHost,
		SMTPPort:     opts.Notify.SMTPPort,
		SMTPTLS:      opts.Notify.SMTPTLS,
		SMTPStartTLS: opts.Notify.SMTPStartTLS,
		SMTPUsername: opts.Notify.SMTPUsername,
		SMTPPassword: opts.Notify.SMTPPassword,
		SMTPTimeout:  opts.Notify.SMTPTimeOut,
		FromEmail:    from,
		ToEmails:     opts.Notify.ToEmails,
	})
	if svc == nil {
		return nil
	}
	esc := notify.NewEscalator(notify.EscalatorParams{
		Sender:        svc,
		Next:          out,
		Host:          svc.Host(),
		Backlog:       opts.Notify.Backlog,
		DedupInterval: opts.Notify.Dedup,
		Timeout:       opts.Notify.SMTPTimeOut,
	})
	setupLogger(esc)
	return esc
}

func makeHostName() string {
	if opts.Notify.HostName != "" {
		return opts.Notify.HostName
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// setupLogs returns log destination, rotated file if enabled or stdout, and sets lgr to it
func setupLogs() io.Writer {
	var out io.Writer = os.Stdout
	if opts.Log.Enabled {
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
			MaxAge:     opts.Log.MaxAge,
			Compress:   opts.Log.EnabledCompress,
		}
	}
	setupLogger(out)
	return out
}

func setupLogger(out io.Writer) {
	if opts.Dbg {
		log.Setup(log.Debug, log.Msec, log.LevelBraces, log.CallerFile, log.CallerFunc, log.Out(out), log.Err(out))
		return
	}
	log.Setup(log.Msec, log.LevelBraces, log.Out(out), log.Err(out))
}

// validateBaseURL drops trailing slash, root path means no prefix
func validateBaseURL(s string) string {
	if s == "" || s == "/" {
		return ""
	}
	return strings.TrimSuffix(s, "/")
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGQUIT {
				stacktrace := make([]byte, 8192)
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			log.Printf("[WARN] %v signal, terminating", sig)
			cancel()
		}
	}()
}
