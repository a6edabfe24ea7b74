package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oss-static/cpreproc/pkg/cpp"
	"github.com/oss-static/cpreproc/pkg/preproc"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	includePaths  []string
	systemPaths   []string
	defineFlags   []string
	undefineFlags []string
	lineMarkers   bool
	useExternalPP bool
	listConfigs   bool
	xmlErrors     bool
	settingsFile  string
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cpreproc [file]",
		Short:         "cpreproc expands includes, enumerates configurations, and expands macros for one configuration",
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := args[0]

			if listConfigs {
				return doListConfigs(filename, out, errOut)
			}
			return doPreprocess(filename, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().StringArrayVarP(&includePaths, "include", "I", nil, "add directory to include search path")
	rootCmd.Flags().StringArrayVar(&systemPaths, "isystem", nil, "add directory to system include search path")
	rootCmd.Flags().StringArrayVarP(&defineFlags, "define", "D", nil, "define macro (NAME or NAME=VALUE)")
	rootCmd.Flags().StringArrayVarP(&undefineFlags, "undefine", "U", nil, "undefine macro")
	rootCmd.Flags().BoolVar(&lineMarkers, "line-markers", false, `emit "# <line> \"<file>\"" markers at file transitions`)
	rootCmd.Flags().BoolVar(&useExternalPP, "external-cpp", false, "use the system C preprocessor instead of the internal one")
	rootCmd.Flags().BoolVar(&listConfigs, "list-configs", false, "print every configuration the Enumerator finds instead of preprocessing")
	rootCmd.Flags().BoolVar(&xmlErrors, "xml-errors", false, "print reported diagnostics as XML instead of plain text")
	rootCmd.Flags().StringVar(&settingsFile, "settings", "", "load -D/-U and include-path defaults from a YAML settings file")

	return rootCmd
}

func buildPreprocessorOptions() *preproc.Options {
	opts := &preproc.Options{
		IncludePaths: includePaths,
		SystemPaths:  systemPaths,
		Defines:      make(map[string]string),
		Undefines:    undefineFlags,
		UseExternal:  useExternalPP,
		LineMarkers:  lineMarkers,
	}
	for _, d := range defineFlags {
		if idx := strings.Index(d, "="); idx >= 0 {
			opts.Defines[d[:idx]] = d[idx+1:]
		} else {
			opts.Defines[d] = ""
		}
	}

	if settingsFile != "" {
		s, err := cpp.LoadSettingsFile(settingsFile)
		if err == nil {
			for name, value := range s.Defines {
				if _, exists := opts.Defines[name]; !exists {
					opts.Defines[name] = value
				}
			}
			opts.Undefines = append(opts.Undefines, s.Undefines...)
			opts.IncludePaths = append(opts.IncludePaths, s.IncludePaths...)
			opts.SystemPaths = append(opts.SystemPaths, s.SystemPaths...)
		}
	}

	return opts
}

// doPreprocess expands includes and macros for the one configuration
// implied by the command line's -D/-U flags, and prints the result.
func doPreprocess(filename string, out, errOut io.Writer) error {
	opts := buildPreprocessorOptions()

	if !xmlErrors {
		content, err := preproc.Preprocess(filename, opts)
		if err != nil {
			fmt.Fprintf(errOut, "cpreproc: preprocessing error: %v\n", err)
			return err
		}
		fmt.Fprint(out, content)
		return nil
	}

	ppOpts := cpp.PreprocessorOptions{
		IncludePaths: opts.IncludePaths,
		SystemPaths:  opts.SystemPaths,
		Undefines:    opts.Undefines,
		LineMarkers:  opts.LineMarkers,
	}
	for name, value := range opts.Defines {
		if value == "" {
			ppOpts.Defines = append(ppOpts.Defines, name)
		} else {
			ppOpts.Defines = append(ppOpts.Defines, name+"="+value)
		}
	}

	pp := cpp.NewPreprocessor(ppOpts)
	content, err := pp.PreprocessFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "cpreproc: preprocessing error: %v\n", err)
		return err
	}
	fmt.Fprint(out, content)

	xmlOut, err := pp.Diagnostics().ToXML()
	if err != nil {
		return err
	}
	fmt.Fprintln(errOut, string(xmlOut))
	return nil
}

// doListConfigs runs only the Reader/Includer/Enumerator stages and prints
// every configuration the source needs to exercise all of its conditional
// branches, one per line ("(default)" denotes the default configuration).
func doListConfigs(filename string, out, errOut io.Writer) error {
	src, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "cpreproc: error reading %s: %v\n", filename, err)
		return err
	}

	_, cfgs, sink, err := cpp.Preprocess(src, filename, includePaths)
	if err != nil {
		fmt.Fprintf(errOut, "cpreproc: preprocessing error: %v\n", err)
		return err
	}
	for _, d := range sink.Items() {
		fmt.Fprintf(errOut, "cpreproc: %s: %s\n", d.ID, d.Message)
	}
	for _, cfg := range cfgs {
		if cfg == "" {
			fmt.Fprintln(out, "(default)")
			continue
		}
		fmt.Fprintln(out, cfg)
	}
	return nil
}
