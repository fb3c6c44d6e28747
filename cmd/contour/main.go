// Package main is the contour command line tool: get, set, list,
// import, export, and convert configuration files through the format
// registry and the file backend.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/contour/internal/check"
	"github.com/dshills/contour/internal/keyset"
	"github.com/dshills/contour/internal/merge"
	"github.com/dshills/contour/internal/plugin"
	"github.com/dshills/contour/internal/plugin/cryptfilter"
	"github.com/dshills/contour/internal/plugin/fileback"
	"github.com/dshills/contour/internal/plugin/hclformat"
	"github.com/dshills/contour/internal/plugin/iniformat"
	"github.com/dshills/contour/internal/plugin/jsonformat"
	"github.com/dshills/contour/internal/plugin/luafilter"
	"github.com/dshills/contour/internal/plugin/tomlformat"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	switch args[0] {
	case "get":
		return cmdGet(args[1:])
	case "set":
		return cmdSet(args[1:])
	case "ls":
		return cmdLs(args[1:])
	case "import":
		return cmdImport(args[1:])
	case "export":
		return cmdExport(args[1:])
	case "convert":
		return cmdConvert(args[1:])
	case "version", "-version", "--version":
		fmt.Printf("contour %s (%s)\n", version, commit)
		return 0
	case "help", "-help", "--help", "-h":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Contour - hierarchical configuration store\n\n")
	fmt.Fprintf(os.Stderr, "Usage: contour <command> [options] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  get      Print the value of a key\n")
	fmt.Fprintf(os.Stderr, "  set      Set the value of a key\n")
	fmt.Fprintf(os.Stderr, "  ls       List key names, optionally below a prefix\n")
	fmt.Fprintf(os.Stderr, "  import   Merge another file into a configuration file\n")
	fmt.Fprintf(os.Stderr, "  export   Write a configuration file in another format\n")
	fmt.Fprintf(os.Stderr, "  convert  Convert a file between formats\n")
	fmt.Fprintf(os.Stderr, "  version  Show version information\n\n")
	fmt.Fprintf(os.Stderr, "Run 'contour <command> -h' for command options.\n")
}

// fileOptions are the flags shared by every command that opens a file.
type fileOptions struct {
	file       string
	format     string
	root       string
	passphrase string
	script     string
	validate   bool
	logLevel   string
}

func addFileFlags(fs *flag.FlagSet, o *fileOptions) {
	fs.StringVar(&o.file, "file", "", "Configuration file path")
	fs.StringVar(&o.file, "f", "", "Configuration file path (shorthand)")
	fs.StringVar(&o.format, "format", "", "Storage format (default: by file extension)")
	fs.StringVar(&o.root, "root", "/", "Mount root for keys in the file")
	fs.StringVar(&o.passphrase, "passphrase", "", "Decrypt/encrypt the file with this passphrase")
	fs.StringVar(&o.script, "filter", "", "Lua filter script applied on fetch and persist")
	fs.BoolVar(&o.validate, "validate", false, "Enforce check/* metadata on fetch and persist")
	fs.StringVar(&o.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

func newRegistry() *plugin.Registry {
	r := plugin.NewRegistry()
	r.MustRegister(iniformat.New())
	r.MustRegister(tomlformat.New())
	r.MustRegister(jsonformat.New())
	r.MustRegister(hclformat.New())
	return r
}

// formatFor picks a format by explicit name, falling back to the file
// extension.
func formatFor(reg *plugin.Registry, name, path string) (plugin.Format, error) {
	if name == "" {
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		switch ext {
		case "toml", "json", "hcl", "ini":
			name = ext
		case "":
			return nil, fmt.Errorf("cannot infer format for %q, use -format", path)
		default:
			name = "ini"
		}
	}
	return reg.Lookup(name)
}

// openBackend assembles the backend with the filters the flags request.
// The returned cleanup releases filter resources.
func openBackend(o *fileOptions) (*fileback.Backend, func(), error) {
	if o.file == "" {
		return nil, nil, errors.New("missing -file")
	}
	setupLogging(o.logLevel)

	format, err := formatFor(newRegistry(), o.format, o.file)
	if err != nil {
		return nil, nil, err
	}

	var opts []fileback.Option
	cleanup := func() {}

	if o.passphrase != "" {
		crypt, err := cryptfilter.NewFromPassphrase(o.passphrase)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, fileback.WithFileFilter(crypt))
	}
	if o.script != "" {
		src, err := os.ReadFile(o.script)
		if err != nil {
			return nil, nil, err
		}
		lf, err := luafilter.New(string(src))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, fileback.WithKeyFilter(lf))
		cleanup = lf.Close
	}
	if o.validate {
		opts = append(opts, fileback.WithKeyFilter(check.New()))
	}

	return fileback.New(o.file, format, opts...), cleanup, nil
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func cmdGet(args []string) int {
	var o fileOptions
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	addFileFlags(fs, &o)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: contour get -file <path> <key>")
		return 2
	}

	b, cleanup, err := openBackend(&o)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	ks, err := b.Fetch(o.root)
	if err != nil {
		return fail(err)
	}
	k := ks.CascadingLookup(fs.Arg(0))
	if k == nil {
		fmt.Fprintf(os.Stderr, "Error: key %q not found\n", fs.Arg(0))
		return 1
	}
	fmt.Println(k.Value())
	return 0
}

func cmdSet(args []string) int {
	var o fileOptions
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	addFileFlags(fs, &o)
	fs.Parse(args)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: contour set -file <path> <key> <value>")
		return 2
	}

	b, cleanup, err := openBackend(&o)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	ks, err := b.Fetch(o.root)
	if err != nil {
		return fail(err)
	}
	if _, err := ks.Set(fs.Arg(0), fs.Arg(1)); err != nil {
		return fail(err)
	}
	if err := b.Persist(o.root, ks); err != nil {
		return fail(err)
	}
	return 0
}

func cmdLs(args []string) int {
	var o fileOptions
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	addFileFlags(fs, &o)
	fs.Parse(args)

	b, cleanup, err := openBackend(&o)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	ks, err := b.Fetch(o.root)
	if err != nil {
		return fail(err)
	}

	if fs.NArg() > 0 {
		for _, k := range ks.Below(fs.Arg(0)) {
			fmt.Println(k.Name())
		}
		return 0
	}
	for _, name := range ks.Names() {
		fmt.Println(name)
	}
	return 0
}

func cmdImport(args []string) int {
	var o fileOptions
	var from, fromFormat, strategyName string
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	addFileFlags(fs, &o)
	fs.StringVar(&from, "from", "", "File to import")
	fs.StringVar(&fromFormat, "from-format", "", "Format of the imported file")
	fs.StringVar(&strategyName, "strategy", "fail", "Conflict strategy (fail, ours, theirs)")
	fs.Parse(args)
	if from == "" {
		fmt.Fprintln(os.Stderr, "Usage: contour import -file <path> -from <path> [-strategy fail|ours|theirs]")
		return 2
	}

	strategy, err := merge.ParseStrategy(strategyName)
	if err != nil {
		return fail(err)
	}

	b, cleanup, err := openBackend(&o)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	ks, err := b.Fetch(o.root)
	if err != nil {
		return fail(err)
	}

	src := fileback.New(from, mustFormat(fromFormat, from))
	incoming, err := src.Fetch(o.root)
	if err != nil {
		return fail(err)
	}

	merged, err := merge.Merge(ks, incoming, strategy)
	if err != nil {
		var cerr *merge.ConflictError
		if errors.As(err, &cerr) {
			for _, c := range cerr.Conflicts {
				fmt.Fprintf(os.Stderr, "conflict: %s (ours %q, theirs %q)\n", c.Name, c.Ours, c.Theirs)
			}
		}
		return fail(err)
	}
	if err := b.Persist(o.root, merged); err != nil {
		return fail(err)
	}
	return 0
}

func cmdExport(args []string) int {
	var o fileOptions
	var to, toFormat string
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	addFileFlags(fs, &o)
	fs.StringVar(&to, "to", "", "Destination file")
	fs.StringVar(&toFormat, "to-format", "", "Destination format")
	fs.Parse(args)
	if to == "" {
		fmt.Fprintln(os.Stderr, "Usage: contour export -file <path> -to <path> [-to-format <name>]")
		return 2
	}

	b, cleanup, err := openBackend(&o)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	ks, err := b.Fetch(o.root)
	if err != nil {
		return fail(err)
	}

	dst := fileback.New(to, mustFormat(toFormat, to))
	if err := dst.Persist(o.root, ks); err != nil {
		return fail(err)
	}
	return 0
}

func cmdConvert(args []string) int {
	var from, fromFormat, to, toFormat string
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	fs.StringVar(&from, "from", "", "Source file")
	fs.StringVar(&fromFormat, "from-format", "", "Source format")
	fs.StringVar(&to, "to", "", "Destination file")
	fs.StringVar(&toFormat, "to-format", "", "Destination format")
	fs.Parse(args)
	if from == "" || to == "" {
		fmt.Fprintln(os.Stderr, "Usage: contour convert -from <path> -to <path>")
		return 2
	}

	src := fileback.New(from, mustFormat(fromFormat, from))
	ks, err := src.Fetch("/")
	if err != nil {
		return fail(err)
	}

	// Structural metadata is format-specific, drop it on the way over.
	// Section and block marker keys carry no value of their own.
	out := keyset.New()
	for _, k := range ks.Keys() {
		if _, ok := k.Meta("ini/section"); ok {
			continue
		}
		if _, ok := k.Meta("hcl/block"); ok {
			continue
		}
		nk := keyset.MustKey(k.Name(), keyset.WithValue(k.Value()))
		if typ, ok := k.Meta("type"); ok {
			nk.SetMeta("type", typ)
		}
		out.Insert(nk)
	}

	dst := fileback.New(to, mustFormat(toFormat, to))
	if err := dst.Persist("/", out); err != nil {
		return fail(err)
	}
	return 0
}

// mustFormat resolves a format or exits; commands validate their paths
// before calling it.
func mustFormat(name, path string) plugin.Format {
	f, err := formatFor(newRegistry(), name, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return f
}
