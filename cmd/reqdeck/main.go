package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"

	"github.com/unkn0wn-root/reqdeck/internal/auth"
	"github.com/unkn0wn-root/reqdeck/internal/collections"
	"github.com/unkn0wn-root/reqdeck/internal/config"
	"github.com/unkn0wn-root/reqdeck/internal/errdef"
	"github.com/unkn0wn-root/reqdeck/internal/history"
	"github.com/unkn0wn-root/reqdeck/internal/httpclient"
	importcurl "github.com/unkn0wn-root/reqdeck/internal/importer/curl"
	importopenapi "github.com/unkn0wn-root/reqdeck/internal/importer/openapi"
	importpostman "github.com/unkn0wn-root/reqdeck/internal/importer/postman"
	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
	"github.com/unkn0wn-root/reqdeck/internal/store"
	"github.com/unkn0wn-root/reqdeck/internal/telemetry"
	"github.com/unkn0wn-root/reqdeck/internal/vars"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var usage = heredoc.Doc(`
	reqdeck - REST API client for the terminal

	Usage:
	  reqdeck <command> [flags] [args]

	Commands:
	  send      Dispatch a request: reqdeck send [flags] URL
	  import    Import curl text, an OpenAPI document, or a Postman collection
	  export    Write all collections and saved requests as JSON to stdout
	  curl      Print a saved request as a curl command: reqdeck curl REQUEST-ID
	  history   Show request history: reqdeck history [search QUERY | clear]
	  env       List environments from the configured environment file
	  version   Show version information

	Run "reqdeck <command> -h" for command flags.
`)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	settings, _, err := config.LoadSettings()
	if err != nil {
		log.Printf("settings load error: %v", err)
		settings = config.DefaultSettings()
	}

	a := &app{settings: settings}
	defer a.close()

	switch os.Args[1] {
	case "send":
		err = a.cmdSend(os.Args[2:])
	case "import":
		err = a.cmdImport(os.Args[2:])
	case "export":
		err = a.cmdExport(os.Args[2:])
	case "curl":
		err = a.cmdCurl(os.Args[2:])
	case "history":
		err = a.cmdHistory(os.Args[2:])
	case "env":
		err = a.cmdEnv(os.Args[2:])
	case "version", "-version", "--version":
		fmt.Printf("reqdeck %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		a.close()
		log.Fatalf("%s: %v", os.Args[1], errdef.Message(err))
	}
}

type app struct {
	settings config.Settings
	db       *store.Store
}

func (a *app) openStore() (*store.Store, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := store.Open(a.settings.StorePath)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("store close error: %v", err)
		}
		a.db = nil
	}
}

// headerList collects repeated -H flags.
type headerList []string

func (h *headerList) String() string { return strings.Join(*h, ", ") }

func (h *headerList) Set(value string) error {
	*h = append(*h, value)
	return nil
}

func (a *app) cmdSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	var (
		method    string
		data      string
		headers   headerList
		timeout   time.Duration
		envName   string
		envFile   string
		requestID string
	)
	fs.StringVar(&requestID, "id", "", "Send a saved request by id instead of a URL")
	fs.StringVar(&method, "X", "GET", "HTTP method")
	fs.StringVar(&method, "method", "GET", "HTTP method")
	fs.Var(&headers, "H", "Header in \"Key: Value\" form (repeatable)")
	fs.StringVar(&data, "d", "", "Request body")
	fs.DurationVar(&timeout, "timeout", time.Duration(a.settings.TimeoutSeconds)*time.Second, "Request timeout")
	fs.StringVar(&envName, "env", a.settings.ActiveEnvironment, "Environment name to resolve {{placeholders}} with")
	fs.StringVar(&envFile, "env-file", a.settings.EnvironmentFile, "Path to environment file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	db, err := a.openStore()
	if err != nil {
		return err
	}

	var req *restmodel.Request
	switch {
	case requestID != "":
		if fs.NArg() != 0 {
			return errdef.New(errdef.CodeValidation, "-id and a URL argument are mutually exclusive")
		}
		req, err = collections.NewService(db).GetRequest(requestID)
		if err != nil {
			return err
		}
	case fs.NArg() == 1:
		req = restmodel.NewRequest()
		req.Method = strings.ToUpper(method)
		req.URL = fs.Arg(0)
		req.Headers = nil
		req.Params = nil
		for _, raw := range headers {
			key, value, ok := strings.Cut(raw, ":")
			if !ok || strings.TrimSpace(key) == "" {
				return errdef.New(errdef.CodeValidation, "invalid header %q", raw)
			}
			req.Headers = append(req.Headers, restmodel.Row{
				Enabled: true,
				Key:     strings.TrimSpace(key),
				Value:   strings.TrimSpace(value),
			})
		}
		req.Body = data
		switch {
		case data == "":
			req.BodyType = restmodel.BodyNone
		case strings.HasPrefix(strings.TrimSpace(data), "{"), strings.HasPrefix(strings.TrimSpace(data), "["):
			req.BodyType = restmodel.BodyJSON
		default:
			req.BodyType = restmodel.BodyRaw
		}
		if req.BodyType != restmodel.BodyNone && req.Method == "GET" {
			req.Method = "POST"
		}
	default:
		return errdef.New(errdef.CodeValidation, "expected exactly one URL argument or -id")
	}

	resolver, err := a.newResolver(envName, envFile)
	if err != nil {
		return err
	}
	recorder := history.NewService(db, a.settings.HistoryLimit)

	manager := auth.NewManager(&http.Client{Timeout: timeout})
	authProvider, err := auth.NewProvider(db, manager)
	if err != nil {
		return err
	}

	instrumenter := telemetry.Noop()
	telemetryCfg := telemetry.ConfigFromEnv(os.Getenv)
	telemetryCfg.Version = version
	if telemetryCfg.Endpoint == "" {
		telemetryCfg.Endpoint = a.settings.OTLPEndpoint
	}
	if telemetryCfg.Enabled() {
		instr, err := telemetry.New(telemetryCfg)
		if err != nil {
			log.Printf("telemetry init error: %v", err)
		} else {
			instrumenter = instr
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := instrumenter.Shutdown(ctx); err != nil {
					log.Printf("telemetry shutdown: %v", err)
				}
			}()
		}
	}

	client := httpclient.NewClient(httpclient.Options{
		Timeout:      timeout,
		Auth:         authProvider,
		Recorder:     recorder,
		Instrumenter: instrumenter,
		Logf:         log.Printf,
	})

	result := client.Send(context.Background(), req, resolver)
	if result.Error != "" {
		return errdef.New(errdef.CodeHTTP, "%s", result.Error)
	}

	fmt.Printf("%d %s  (%s, %d bytes)\n", result.Status, result.StatusText, result.Duration.Round(time.Millisecond), result.Size)
	for name, values := range result.Headers {
		for _, value := range values {
			fmt.Printf("%s: %s\n", name, value)
		}
	}
	if result.Body != "" {
		fmt.Println()
		fmt.Println(result.Body)
	}
	return nil
}

// newResolver layers providers: the named environment (file first,
// stored environments as fallback), then process env vars.
func (a *app) newResolver(envName, envFile string) (*vars.Resolver, error) {
	providers := []vars.Provider{vars.EnvProvider{}}
	if envName != "" {
		var provider vars.Provider
		if envFile != "" {
			set, err := vars.LoadEnvironmentFile(envFile)
			if err != nil {
				return nil, err
			}
			if _, ok := set[envName]; ok {
				provider = set.Provider(envName)
			}
		}
		if provider == nil {
			db, err := a.openStore()
			if err != nil {
				return nil, err
			}
			provider = vars.NewEnvStore(db).Provider(envName)
		}
		providers = append([]vars.Provider{provider}, providers...)
	}
	return vars.NewResolver(providers...), nil
}

func (a *app) cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	var format string
	fs.StringVar(&format, "format", "auto", "Source format: auto, curl, openapi or postman")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errdef.New(errdef.CodeValidation, "expected a file path or - for stdin")
	}

	data, err := readInput(fs.Arg(0))
	if err != nil {
		return err
	}

	db, err := a.openStore()
	if err != nil {
		return err
	}
	svc := collections.NewService(db)

	switch format {
	case "curl":
		return importCurl(svc, string(data))
	case "openapi":
		return importOpenAPI(svc, data)
	case "postman":
		return importPostman(svc, data)
	case "auto":
		if req, err := importcurl.Parse(string(data)); err == nil {
			return saveImported(svc, "Imported", []*restmodel.Request{req})
		}
		if tree, err := importpostman.Parse(data); err == nil {
			return savePostmanTree(svc, "", tree)
		}
		return importOpenAPI(svc, data)
	default:
		return errdef.New(errdef.CodeValidation, "unknown format %q", format)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read stdin")
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read %s", path)
	}
	return data, nil
}

func importCurl(svc *collections.Service, text string) error {
	req, err := importcurl.Parse(text)
	if err != nil {
		return err
	}
	return saveImported(svc, "Imported", []*restmodel.Request{req})
}

func importOpenAPI(svc *collections.Service, data []byte) error {
	doc, err := importopenapi.Parse(context.Background(), data)
	if err != nil {
		return err
	}
	if len(doc.Requests) == 0 {
		return errdef.New(errdef.CodeParse, "no endpoints found")
	}
	return saveImported(svc, doc.Title, doc.Requests)
}

func importPostman(svc *collections.Service, data []byte) error {
	tree, err := importpostman.Parse(data)
	if err != nil {
		return err
	}
	return savePostmanTree(svc, "", tree)
}

func saveImported(svc *collections.Service, title string, requests []*restmodel.Request) error {
	col, err := svc.Create(title, "")
	if err != nil {
		return err
	}
	for _, req := range requests {
		if _, err := svc.SaveRequest(col.ID, req); err != nil {
			return err
		}
	}
	fmt.Printf("Imported %d request(s) into %q\n", len(requests), col.Name)
	return nil
}

func savePostmanTree(svc *collections.Service, parentID string, tree *importpostman.Tree) error {
	col, err := svc.Create(tree.Name, parentID)
	if err != nil {
		return err
	}
	for _, req := range tree.Requests {
		if _, err := svc.SaveRequest(col.ID, req); err != nil {
			return err
		}
	}
	for _, child := range tree.Children {
		if err := savePostmanTree(svc, col.ID, child); err != nil {
			return err
		}
	}
	if parentID == "" {
		fmt.Printf("Imported collection %q\n", col.Name)
	}
	return nil
}

func (a *app) cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := a.openStore()
	if err != nil {
		return err
	}
	data, err := collections.NewService(db).ExportJSON()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}

func (a *app) cmdCurl(args []string) error {
	fs := flag.NewFlagSet("curl", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errdef.New(errdef.CodeValidation, "expected a request id")
	}

	db, err := a.openStore()
	if err != nil {
		return err
	}
	req, err := collections.NewService(db).GetRequest(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Println(importcurl.Generate(req))
	return nil
}

func (a *app) cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := a.openStore()
	if err != nil {
		return err
	}
	svc := history.NewService(db, a.settings.HistoryLimit)

	switch fs.Arg(0) {
	case "clear":
		if err := svc.Clear(); err != nil {
			return err
		}
		fmt.Println("History cleared.")
		return nil
	case "search":
		query := strings.Join(fs.Args()[1:], " ")
		if strings.TrimSpace(query) == "" {
			return errdef.New(errdef.CodeValidation, "search needs a query")
		}
		entries, err := svc.Search(query)
		if err != nil {
			return err
		}
		printHistory(entries)
		return nil
	case "", "list":
		entries, err := svc.All()
		if err != nil {
			return err
		}
		printHistory(entries)
		return nil
	default:
		return errdef.New(errdef.CodeValidation, "unknown history action %q", fs.Arg(0))
	}
}

func printHistory(entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Println("No history.")
		return
	}
	groups := history.GroupByDate(entries, time.Now())
	printGroup := func(label string, entries []history.Entry) {
		if len(entries) == 0 {
			return
		}
		fmt.Printf("%s:\n", label)
		for _, e := range entries {
			status := fmt.Sprintf("%d", e.Status)
			if !e.Success && e.Error != "" {
				status = e.Error
			}
			fmt.Printf("  %s  %-7s %-40s %s\n", e.ExecutedAt.Format("15:04:05"), e.Method, e.URL, status)
		}
	}
	printGroup("Today", groups.Today)
	printGroup("Yesterday", groups.Yesterday)
	printGroup("This week", groups.ThisWeek)
	printGroup("Older", groups.Older)
}

func (a *app) cmdEnv(args []string) error {
	fs := flag.NewFlagSet("env", flag.ExitOnError)
	var envFile string
	fs.StringVar(&envFile, "env-file", a.settings.EnvironmentFile, "Path to environment file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := a.openStore()
	if err != nil {
		return err
	}
	envStore := vars.NewEnvStore(db)

	switch fs.Arg(0) {
	case "", "list":
		return a.listEnvironments(envStore, envFile)
	case "set":
		// env set NAME KEY=VALUE [KEY=VALUE ...]
		if fs.NArg() < 3 {
			return errdef.New(errdef.CodeValidation, "usage: env set NAME KEY=VALUE ...")
		}
		name := fs.Arg(1)
		for _, pair := range fs.Args()[2:] {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return errdef.New(errdef.CodeValidation, "invalid variable %q, want KEY=VALUE", pair)
			}
			if _, err := envStore.SetVariable(name, key, value); err != nil {
				return err
			}
		}
		fmt.Printf("Updated environment %q\n", name)
		return nil
	case "show":
		if fs.NArg() != 2 {
			return errdef.New(errdef.CodeValidation, "usage: env show NAME")
		}
		env, err := envStore.Get(fs.Arg(1))
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(env.Variables))
		for key := range env.Variables {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("%s=%s\n", key, env.Variables[key])
		}
		return nil
	case "delete":
		if fs.NArg() != 2 {
			return errdef.New(errdef.CodeValidation, "usage: env delete NAME")
		}
		if err := envStore.Delete(fs.Arg(1)); err != nil {
			return err
		}
		fmt.Printf("Deleted environment %q\n", fs.Arg(1))
		return nil
	default:
		return errdef.New(errdef.CodeValidation, "unknown env action %q", fs.Arg(0))
	}
}

func (a *app) listEnvironments(envStore *vars.EnvStore, envFile string) error {
	names := map[string]bool{}
	if envFile != "" {
		set, err := vars.LoadEnvironmentFile(envFile)
		if err != nil {
			return err
		}
		for _, name := range set.Names() {
			names[name] = true
		}
	}
	stored, err := envStore.All()
	if err != nil {
		return err
	}
	for _, env := range stored {
		names[env.Name] = true
	}
	if len(names) == 0 {
		fmt.Println("No environments.")
		return nil
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	for _, name := range sorted {
		marker := " "
		if name == a.settings.ActiveEnvironment {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, name)
	}
	return nil
}
