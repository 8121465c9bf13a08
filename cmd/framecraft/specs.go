package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/fuzz"
	"github.com/jcalloway/framecraft/internal/config"
	"github.com/jcalloway/framecraft/spec"
)

func newSpecsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "specs",
		Short: "Specification catalog operations",
		Long: `Browse the protocol specifications frames are built from.

One specification ships embedded (KNXnet/IP); more are picked up as
YAML or JSON files from the directories in the config's spec.paths.`,
	}

	cmd.AddCommand(newSpecsListCmd())
	cmd.AddCommand(newSpecsShowCmd())

	return cmd
}

// --- specs list ---

func newSpecsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available specifications",
		Long:  `List the embedded specification and every spec file found in the configured search paths.`,
		Example: `  framecraft specs list
  framecraft --config lab.yaml specs list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpecsList()
		},
	}

	return cmd
}

func runSpecsList() error {
	fmt.Printf("%-20s %-10s %-8s %-8s %s\n", "NAME", "FRAMES", "BLOCKS", "CODES", "SOURCE")
	fmt.Println(strings.Repeat("-", 80))

	count := 0
	for _, entry := range specEntries() {
		sp, err := loadSpec(entry.name)
		if err != nil {
			fmt.Printf("%-20s %s\n", entry.name, "unreadable: "+err.Error())
			continue
		}
		fmt.Printf("%-20s %-10d %-8d %-8d %s\n",
			entry.name, len(fuzz.FrameTypes(sp)), len(sp.Blocks), len(sp.Codes), entry.source)
		count++
	}

	fmt.Printf("\n%d specification(s)\n", count)
	return nil
}

type specEntry struct {
	name   string
	source string
}

// specEntries lists the embedded spec plus every YAML/JSON file in the
// configured search paths, deduplicated by name, embedded first.
func specEntries() []specEntry {
	entries := []specEntry{{name: config.EmbeddedSpecName, source: "embedded"}}
	seen := map[string]bool{config.EmbeddedSpecName: true}

	var found []specEntry
	for _, dir := range cfg.Spec.Paths {
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(f.Name()))
			if ext != ".yaml" && ext != ".yml" && ext != ".json" {
				continue
			}
			name := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
			if seen[name] {
				continue
			}
			seen[name] = true
			found = append(found, specEntry{name: name, source: filepath.Join(dir, f.Name())})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].name < found[j].name })
	return append(entries, found...)
}

// --- specs show ---

type specsShowFlags struct {
	blockName string
}

func newSpecsShowCmd() *cobra.Command {
	flags := &specsShowFlags{}

	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Show a specification's structure",
		Long: `Display a specification: the frame template, the block catalog and
the code tables. With --block only that block's layout is printed.`,
		Example: `  framecraft specs show
  framecraft specs show knxnet --block "CONNECT REQUEST"
  framecraft specs show ./myproto.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			return runSpecsShow(name, flags)
		},
	}

	cmd.Flags().StringVar(&flags.blockName, "block", "", "Show only this block's layout")

	return cmd
}

func runSpecsShow(name string, flags *specsShowFlags) error {
	sp, err := loadSpec(name)
	if err != nil {
		return err
	}

	if flags.blockName != "" {
		descs, ok := sp.BlockDescriptors(flags.blockName)
		if !ok {
			return fmt.Errorf("unknown block %q; known blocks: %s",
				flags.blockName, strings.Join(sp.BlockTypes(), ", "))
		}
		fmt.Printf("Block: %s\n", flags.blockName)
		printDescriptors(descs, "  ")
		return nil
	}

	source := sp.Path
	if source == "" {
		source = "embedded"
	}
	fmt.Printf("Specification: %s\n", source)
	fmt.Println()

	fmt.Println("Frame template:")
	printDescriptors(sp.Template, "  ")
	fmt.Println()

	fmt.Printf("Blocks (%d):\n", len(sp.Blocks))
	for _, typeName := range sp.BlockTypes() {
		fmt.Printf("  %s\n", typeName)
		descs, _ := sp.BlockDescriptors(typeName)
		printDescriptors(descs, "    ")
	}
	fmt.Println()

	fmt.Printf("Code tables (%d):\n", len(sp.Codes))
	for _, field := range sp.CodeTables() {
		table := sp.Codes[field]
		fmt.Printf("  %s (%d entries)\n", field, len(table))
		keys := make([]string, 0, len(table))
		for k := range table {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("    0x%s  %s\n", k, table[k])
		}
	}

	shapes := fuzz.FrameTypes(sp)
	fmt.Println()
	fmt.Printf("Frame shapes (%d): %s\n", len(shapes), strings.Join(shapes, ", "))
	return nil
}

// printDescriptors renders one block template, one entry per line.
func printDescriptors(descs []spec.Descriptor, indent string) {
	for _, d := range descs {
		switch d.Kind {
		case spec.KindField:
			extra := ""
			if d.IsLength {
				extra = "  length field"
			}
			if len(d.Default) > 0 {
				extra += "  default 0x" + codec.ToHex(d.Default)
			}
			fmt.Printf("%s%-28s field  %d byte(s)%s\n", indent, d.Name, d.Size, extra)
		case spec.KindBlock:
			fmt.Printf("%s%-28s block  %s\n", indent, d.Name, d.BlockType)
		case spec.KindConditional:
			fmt.Printf("%s%-28s block  chosen by %q\n", indent, d.Name, d.DependsOn)
		}
	}
}
