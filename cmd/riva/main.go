// riva - Riva 字节码引擎命令行入口
//
// 用法:
//   riva run [options] image.rvc [entry [args...]]   # 运行字节码镜像
//   riva dump image.rvc                              # 反汇编镜像
//   riva version                                     # 版本信息
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/rivalang/riva/internal/bytecode"
	"github.com/rivalang/riva/internal/engine"
)

const (
	Version = "0.1.0"
	Name    = "riva"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "dump":
		cmdDump(os.Args[2:])
	case "version", "-v", "--version":
		fmt.Printf("%s version %s\n", Name, Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Riva bytecode engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  riva run [options] image.rvc [entry [args...]]")
	fmt.Println("  riva dump image.rvc")
	fmt.Println("  riva version")
	fmt.Println()
	fmt.Println("Run options:")
	fmt.Println("  -config path    configuration file (default: nearest riva.toml)")
	fmt.Println("  -profile path   write the execution profile as JSON on exit")
	fmt.Println("  -no-jit         disable the promoting compiler")
	fmt.Println("  -verbose        debug logging")
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file")
	profilePath := fs.String("profile", "", "write the execution profile as JSON")
	noJIT := fs.Bool("no-jit", false, "disable the promoting compiler")
	verbose := fs.Bool("verbose", false, "debug logging")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "riva run: missing image path")
		os.Exit(1)
	}
	imagePath := fs.Arg(0)

	log := newLogger(*verbose)
	defer log.Sync()

	cfg := loadConfig(*configPath, imagePath, log)
	if *noJIT {
		cfg.JIT.Enabled = false
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		fatal(log, "cannot read image", err)
	}

	e := engine.New(cfg, log)
	m, err := bytecode.DeserializeModule(data)
	if err != nil {
		fatal(log, "cannot load image", err)
	}

	var result bytecode.Value
	if fs.NArg() >= 2 {
		// 显式入口：riva run image.rvc entry 1 2 3
		if _, err := e.LoadModule(m); err != nil {
			fatal(log, "cannot load module", err)
		}
		callArgs, err := parseArgs(fs.Args()[2:])
		if err != nil {
			fatal(log, "bad argument", err)
		}
		result, err = e.Invoke(fs.Arg(1), callArgs...)
		if err != nil {
			fatal(log, "execution failed", err)
		}
	} else {
		result, err = e.RunMain(m)
		if err != nil {
			fatal(log, "execution failed", err)
		}
	}

	if !result.IsNil() {
		fmt.Println(result.String())
	}

	if *profilePath != "" {
		dump, err := e.ProfileJSON()
		if err != nil {
			fatal(log, "cannot export profile", err)
		}
		if err := os.WriteFile(*profilePath, dump, 0644); err != nil {
			fatal(log, "cannot write profile", err)
		}
		log.Info("profile written", zap.String("path", *profilePath))
	}
}

func cmdDump(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "riva dump: missing image path")
		os.Exit(1)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "riva dump: %v\n", err)
		os.Exit(1)
	}
	m, err := bytecode.DeserializeModule(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "riva dump: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(bytecode.DisassembleModule(m))
}

// loadConfig 显式路径优先，否则从镜像位置向上找 riva.toml
func loadConfig(explicit, imagePath string, log *zap.Logger) *engine.Config {
	path := explicit
	if path == "" {
		path = engine.FindConfigFile(imagePath)
	}
	if path == "" {
		return engine.DefaultConfig()
	}
	cfg, err := engine.LoadConfig(path)
	if err != nil {
		fatal(log, "bad configuration", err)
	}
	log.Debug("configuration loaded", zap.String("path", path))
	return cfg
}

// parseArgs 命令行实参：整数、浮点或字符串
func parseArgs(raw []string) ([]bytecode.Value, error) {
	out := make([]bytecode.Value, len(raw))
	for i, s := range raw {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			out[i] = bytecode.NewInt(n)
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			out[i] = bytecode.NewFloat(f)
			continue
		}
		out[i] = bytecode.NewString(s)
	}
	return out, nil
}

func newLogger(verbose bool) *zap.Logger {
	if verbose {
		log, _ := zap.NewDevelopment()
		return log
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	log, _ := cfg.Build()
	return log
}

func fatal(log *zap.Logger, msg string, err error) {
	log.Error(msg, zap.Error(err))
	fmt.Fprintf(os.Stderr, "riva: %s: %v\n", msg, err)
	os.Exit(1)
}
