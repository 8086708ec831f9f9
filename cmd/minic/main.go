package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"minic/pkg/config"
	"minic/pkg/console"
	"minic/pkg/device"
	"minic/pkg/engine"
	"minic/pkg/image"
	"minic/pkg/lexer"
	"minic/pkg/native"
	"minic/pkg/token"
	"minic/pkg/version"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("minic")

// errUsage marks a command line that could not be understood; the usage
// line has already been printed.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	stdout io.Writer
	stderr io.Writer
	flags  *flag.FlagSet

	cfg      *config.Config
	trace    bool
	maxSteps int
}

// run executes one command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}

	c.flags = flag.NewFlagSet("minic", flag.ContinueOnError)
	c.flags.SetOutput(stderr)
	verbosity := c.flags.Int("v", 0, "log verbosity (1 info, 2 debug)")
	configDir := c.flags.String("config", ".", "directory holding minic.toml and .env")
	c.flags.BoolVar(&c.trace, "trace", false, "log every executed instruction")
	c.flags.IntVar(&c.maxSteps, "max-steps", 0, "stop a run after this many instructions (0 = unbounded)")
	c.flags.Usage = c.printHelp

	if err := c.flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	args = c.flags.Args()
	if len(args) == 0 {
		c.printUsage()
		return 0
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	c.cfg = cfg
	c.configureLogging(*verbosity)

	if err := c.dispatch(args[0], args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, err)
		}
		return 1
	}
	return 0
}

func (c *cli) dispatch(command string, args []string) error {
	switch command {
	case "run":
		file, err := c.oneArg(args, "minic run <file>")
		if err != nil {
			return err
		}
		src, err := readSource(file)
		if err != nil {
			return err
		}
		return c.execute(src)
	case "eval":
		code, err := c.oneArg(args, "minic eval '<code>'")
		if err != nil {
			return err
		}
		if err := config.CheckSource([]byte(code)); err != nil {
			return err
		}
		return c.execute(code)
	case "dis":
		file, err := c.oneArg(args, "minic dis <file>")
		if err != nil {
			return err
		}
		return c.disassemble(file)
	case "tokens":
		file, err := c.oneArg(args, "minic tokens <file>")
		if err != nil {
			return err
		}
		return c.printTokens(file)
	case "build":
		return c.buildImage(args)
	case "exec":
		path, err := c.oneArg(args, "minic exec <image>")
		if err != nil {
			return err
		}
		return c.execImage(path)
	case "serve":
		return c.serve()
	case "hash-password":
		password, err := c.oneArg(args, "minic hash-password <password>")
		if err != nil {
			return err
		}
		hash, err := console.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, hash)
		return nil
	case "version", "--version":
		c.printVersion()
		return nil
	case "help", "--help", "-h":
		c.printHelp()
		return nil
	default:
		fmt.Fprintf(c.stdout, "Unknown command: %s\n\n", command)
		c.printHelp()
		return errUsage
	}
}

func (c *cli) configureLogging(verbosity int) {
	v := c.cfg.Log.Verbosity
	if verbosity > v {
		v = verbosity
	}
	if c.trace && v < 2 {
		v = 2
	}
	var path *string
	if c.cfg.Log.File != "" {
		path = &c.cfg.Log.File
	}
	commonlog.Configure(v, path)
}

func (c *cli) oneArg(args []string, usage string) (string, error) {
	if len(args) < 1 {
		fmt.Fprintln(c.stdout, "Usage: "+usage)
		return "", errUsage
	}
	return args[0], nil
}

// parseInterleaved parses fs over args, allowing flags before and after
// positional arguments, and returns the positionals in order.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

// board builds the simulated device for a CLI run; the UART is stdout.
func (c *cli) board() *device.Sim {
	opts := []device.SimOption{device.WithUART(c.stdout)}
	if c.cfg.Device.FSRoot != "" {
		opts = append(opts, device.WithFSRoot(c.cfg.Device.FSRoot))
	}
	if c.cfg.Device.VirtualTime {
		opts = append(opts, device.WithVirtualClock())
	}
	return device.NewSim(opts...)
}

func (c *cli) engineOptions(natives *native.Registry) engine.Options {
	return engine.Options{
		Limits:   c.cfg.Limits,
		Natives:  natives,
		Trace:    c.trace,
		MaxSteps: c.maxSteps,
	}
}

func readSource(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := config.CheckSource(data); err != nil {
		return "", fmt.Errorf("%s: %w", filename, err)
	}
	return string(data), nil
}

func (c *cli) execute(src string) error {
	dev := c.board()
	res, err := engine.Run(src, c.engineOptions(native.Board(dev)))
	if err != nil {
		return err
	}
	c.report(res)
	if dev.YieldRequested() {
		log.Infof("script requested yield")
	}
	return nil
}

func (c *cli) report(res *engine.Result) {
	if res.MainCalled {
		fmt.Fprintln(c.stdout, res.Return.Inspect())
	}
}

func (c *cli) disassemble(filename string) error {
	src, err := readSource(filename)
	if err != nil {
		return err
	}
	bc, err := engine.Compile(src, c.engineOptions(native.Board(device.NewSim())))
	if err != nil {
		return err
	}

	w := c.stdout
	fmt.Fprintf(w, "%d words, %d globals, %d top-level locals\n", len(bc.Instructions), bc.Globals, bc.MainLocals)
	if len(bc.Funcs) > 0 {
		fmt.Fprintln(w, "Functions:")
		for i, fn := range bc.Funcs {
			marker := ""
			if i == bc.Main {
				marker = "  (main)"
			}
			fmt.Fprintf(w, "  %2d %-12s @%04d params=%d locals=%d returns %s%s\n",
				i, fn.Name, fn.Start, fn.Params, fn.Locals, fn.Return, marker)
		}
	}
	if len(bc.Strings) > 0 {
		fmt.Fprintln(w, "Strings:")
		for i, s := range bc.Strings {
			fmt.Fprintf(w, "  %2d %q\n", i, s)
		}
	}
	fmt.Fprintln(w, "Code:")
	fmt.Fprint(w, bc.Instructions.String())
	return nil
}

func (c *cli) printTokens(filename string) error {
	src, err := readSource(filename)
	if err != nil {
		return err
	}
	l := lexer.New(src)
	for {
		tok := l.NextToken()
		fmt.Fprintf(c.stdout, "%5d %-12s %q\n", tok.Offset, tok.Type, tok.Literal)
		if tok.Type == token.END {
			return nil
		}
	}
}

func (c *cli) buildImage(args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	out := fs.String("o", "", "output image path (default <file>.mci)")

	files, err := parseInterleaved(fs, args)
	if err != nil {
		return errUsage
	}
	if len(files) != 1 {
		fmt.Fprintln(c.stdout, "Usage: minic build <file> [-o <image>]")
		return errUsage
	}
	filename := files[0]
	if *out == "" {
		*out = filename + ".mci"
	}

	src, err := readSource(filename)
	if err != nil {
		return err
	}
	bc, err := engine.Compile(src, c.engineOptions(native.Board(device.NewSim())))
	if err != nil {
		return err
	}
	if err := image.WriteFile(*out, image.New(bc, c.cfg.Limits)); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	log.Infof("wrote %s (%d words)", *out, len(bc.Instructions))
	return nil
}

func (c *cli) execImage(path string) error {
	img, err := image.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	natives := native.Board(c.board())
	if err := img.Check(natives); err != nil {
		return err
	}

	opts := c.engineOptions(natives)
	opts.Limits = img.Limits
	res, err := engine.Exec(img.Bytecode(), opts)
	if err != nil {
		return err
	}
	c.report(res)
	return nil
}

func (c *cli) serve() error {
	ttl, err := c.cfg.TokenDuration()
	if err != nil {
		return err
	}

	var simOpts []device.SimOption
	if c.cfg.Device.FSRoot != "" {
		simOpts = append(simOpts, device.WithFSRoot(c.cfg.Device.FSRoot))
	}
	if c.cfg.Device.VirtualTime {
		simOpts = append(simOpts, device.WithVirtualClock())
	}

	srv, err := console.New(console.Options{
		PasswordHash: c.cfg.Console.PasswordHash,
		Secret:       []byte(c.cfg.Console.Secret),
		TokenTTL:     ttl,
		Limits:       c.cfg.Limits,
		MaxSteps:     c.cfg.Console.MaxSteps,
		SimOptions:   simOpts,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx, c.cfg.Console.Listen); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *cli) printUsage() {
	w := c.stdout
	fmt.Fprintln(w, "minic v"+version.Version)
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  minic run <file>          Run a script on the simulated board")
	fmt.Fprintln(w, "  minic eval '<code>'       Run a script given on the command line")
	fmt.Fprintln(w, "  minic help                Show all commands")
}

func (c *cli) printVersion() {
	fmt.Fprintf(c.stdout, "minic %s\n", version.Version)
	fmt.Fprintf(c.stdout, "Build Date: %s\n", version.BuildDate)
	fmt.Fprintf(c.stdout, "Git Commit: %s\n", version.GitCommit)
}

func (c *cli) printHelp() {
	w := c.stdout
	fmt.Fprintln(w, "minic: a small C-like scripting runtime for microcontrollers")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  minic [flags] run <file>              Compile and run a script")
	fmt.Fprintln(w, "  minic [flags] eval '<code>'           Compile and run inline code")
	fmt.Fprintln(w, "  minic [flags] dis <file>              Print the compiled bytecode")
	fmt.Fprintln(w, "  minic [flags] tokens <file>           Print the token stream")
	fmt.Fprintln(w, "  minic [flags] build <file> -o <img>   Compile to a program image")
	fmt.Fprintln(w, "  minic [flags] exec <img>              Run a program image")
	fmt.Fprintln(w, "  minic [flags] serve                   Start the remote console")
	fmt.Fprintln(w, "  minic hash-password <password>        Print a bcrypt hash for the console")
	fmt.Fprintln(w, "  minic version                         Display build metadata")
	fmt.Fprintln(w, "  minic help                            Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	c.flags.SetOutput(w)
	c.flags.PrintDefaults()
	c.flags.SetOutput(c.stderr)
}
