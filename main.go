// fuzzil-inspect browses, generates, and mutates FuzzIL corpus files.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/googleprojectzero/fuzzilli-sub008/engine"
	"github.com/googleprojectzero/fuzzilli-sub008/mutator"
	"github.com/googleprojectzero/fuzzilli-sub008/storage"
	"github.com/googleprojectzero/fuzzilli-sub008/tui"
)

const version = "0.1.0"

// printUsage displays custom usage information
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, `FuzzIL Inspector v%s

USAGE:
    %s [OPTIONS]

DESCRIPTION:
    Inspects FuzzIL corpus files: browse program disassembly, generate fresh
    programs, and preview mutations interactively. Without any flags, it
    starts the interactive inspector over an empty corpus.

    The target shell for executions is read from the %s
    environment variable, with a node binary from PATH as fallback. Without
    either, executions are skipped and mutation previews still work.

OPTIONS:
    -c, --corpus <path>     Load a corpus file
    -o, --out <path>        Export the corpus on exit
    -g, --gen <n>           Generate n programs into the corpus first
    -d, --dump              Print the corpus disassembly and exit
    -s, --seed <n>          Random seed (default: time-derived)
    -f, --config <path>     Load a YAML configuration file
    -n, --no-color          Disable colored output
    -v, --version           Show version information
    -h, --help              Show this help message

EXAMPLES:
    # Browse a corpus file
    %s -c corpus.bin

    # Generate ten programs and dump them
    %s -g 10 -d

    # Generate into a new corpus file
    %s -g 100 -o corpus.bin -d

`, version, os.Args[0], engine.TestShellEnvVar, os.Args[0], os.Args[0], os.Args[0])
}

// nullExecutor reports success without running anything; used when no
// target shell is available.
type nullExecutor struct{}

func (nullExecutor) Execute(string, time.Duration) mutator.Execution {
	return mutator.Execution{Outcome: mutator.ExecutionSucceeded}
}

func main() {
	// Set custom usage function
	flag.Usage = printUsage

	// Define command-line flags
	corpusFlag := flag.String("corpus", "", "Load a corpus file")
	outFlag := flag.String("out", "", "Export the corpus on exit")
	genFlag := flag.Int("gen", 0, "Generate n programs into the corpus first")
	dumpFlag := flag.Bool("dump", false, "Print the corpus disassembly and exit")
	seedFlag := flag.Int64("seed", 0, "Random seed")
	configFlag := flag.String("config", "", "Load a YAML configuration file")
	noColorFlag := flag.Bool("no-color", false, "Disable colored output")
	versionFlag := flag.Bool("version", false, "Show version information")

	// Define short flag aliases
	flag.StringVar(corpusFlag, "c", "", "Load a corpus file")
	flag.StringVar(outFlag, "o", "", "Export the corpus on exit")
	flag.IntVar(genFlag, "g", 0, "Generate n programs into the corpus first")
	flag.BoolVar(dumpFlag, "d", false, "Print the corpus disassembly and exit")
	flag.Int64Var(seedFlag, "s", 0, "Random seed")
	flag.StringVar(configFlag, "f", "", "Load a YAML configuration file")
	flag.BoolVar(noColorFlag, "n", false, "Disable colored output")
	flag.BoolVar(versionFlag, "v", false, "Show version information")

	flag.Parse()

	if *versionFlag {
		fmt.Printf("FuzzIL Inspector v%s\n", version)
		return
	}

	cfg := engine.DefaultConfig()
	if *configFlag != "" {
		loaded, err := engine.LoadConfig(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *seedFlag != 0 {
		cfg.Seed = *seedFlag
	}

	var executor engine.Executor
	if fromEnv, err := engine.NewExecutorFromEnv(); err == nil {
		executor = fromEnv
	} else {
		executor = nullExecutor{}
	}

	corpus := engine.NewMemoryCorpus(rand.New(rand.NewSource(cfg.Seed + 1)))
	fuzzer := engine.New(cfg, corpus, executor, engine.DisassemblyLifter{}, nil)

	if *corpusFlag != "" {
		if err := importCorpus(*corpusFlag, corpus); err != nil {
			fmt.Fprintf(os.Stderr, "Error importing corpus: %s\n", err)
			os.Exit(1)
		}
	}

	for i := 0; i < *genFlag; i++ {
		p, err := fuzzer.GenerateProgram(20)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating program: %s\n", err)
			os.Exit(1)
		}
		corpus.Add(p)
	}

	if *dumpFlag {
		for i, p := range corpus.Programs() {
			fmt.Printf("// Program %d: %s\n%s\n", i, p.ID, p)
		}
	} else {
		if err := tui.Start(fuzzer, corpus, tui.Options{NoColor: *noColorFlag}); err != nil {
			fmt.Fprintf(os.Stderr, "Error running inspector: %s\n", err)
			os.Exit(1)
		}
	}

	if *outFlag != "" {
		if err := exportCorpus(*outFlag, corpus); err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting corpus: %s\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported %d programs to %s\n", corpus.Size(), *outFlag)
	}
}

// importCorpus loads a corpus file, skipping invalid programs.
func importCorpus(path string, corpus *engine.MemoryCorpus) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	result, err := storage.ImportCorpus(file)
	if err != nil {
		return err
	}
	for _, p := range result.Programs {
		corpus.Add(p)
	}
	if result.Invalid > 0 {
		fmt.Fprintf(os.Stderr, "Skipped %d invalid program(s)\n", result.Invalid)
	}
	return nil
}

// exportCorpus writes the corpus to a file.
func exportCorpus(path string, corpus *engine.MemoryCorpus) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return storage.ExportCorpus(file, corpus.Programs())
}
