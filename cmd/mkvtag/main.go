// Command mkvtag reads and edits Matroska/WebM Tags metadata without
// touching the file's media payload.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/morganp/mkvtag"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mkvtag:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mkvtag",
		Short: "Read and edit Matroska/WebM Tags metadata in place",
	}
	root.AddCommand(newGetCmd(), newSetCmd(), newRemoveCmd(), newDumpCmd())
	return root
}

func newLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <file> <name>",
		Short: "Print the value of an album-level tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			defer func() { _ = log.Sync() }()

			ctx, err := mkvtag.Open(args[0], mkvtag.WithLogger(log))
			if err != nil {
				return err
			}
			defer ctx.Close()

			value, ok, err := ctx.ReadTagString(args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("tag %q not found", args[1])
			}
			fmt.Println(value)
			return nil
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <file> <name> <value>",
		Short: "Set an album-level tag, creating it if absent",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			defer func() { _ = log.Sync() }()

			ctx, err := mkvtag.OpenRW(args[0], mkvtag.WithLogger(log))
			if err != nil {
				return err
			}
			defer ctx.Close()

			return ctx.SetTagString(args[1], args[2])
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <file> <name>",
		Short: "Remove every album-level tag with the given name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			defer func() { _ = log.Sync() }()

			ctx, err := mkvtag.OpenRW(args[0], mkvtag.WithLogger(log))
			if err != nil {
				return err
			}
			defer ctx.Close()

			return ctx.RemoveTag(args[1])
		},
	}
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file>",
		Short: "Print the file's structure record (EBML header, top-level offsets, largest Void)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			defer func() { _ = log.Sync() }()

			ctx, err := mkvtag.Open(args[0], mkvtag.WithLogger(log))
			if err != nil {
				return err
			}
			defer ctx.Close()

			info, err := ctx.Structure()
			if err != nil {
				return err
			}
			dumpStructure(info)
			return nil
		},
	}
}

func dumpStructure(info mkvtag.StructureInfo) {
	fmt.Printf("EBML Version: %d\n", info.EBMLVersion)
	fmt.Printf("EBML Read Version: %d\n", info.EBMLReadVersion)
	fmt.Printf("DocType: %s\n", info.DocType)
	fmt.Printf("DocType Version: %d\n", info.DocTypeVersion)
	fmt.Printf("DocType Read Version: %d\n", info.DocTypeReadVersion)
	fmt.Printf("Segment Offset: %d\n", info.SegmentOffset)
	fmt.Printf("Segment Data Offset: %d\n", info.SegmentDataOffset)
	if info.SegmentSizeUnknown {
		fmt.Printf("Segment Size: unknown\n")
	} else {
		fmt.Printf("Segment Size: %d\n", info.SegmentSize)
	}
	fmt.Printf("SeekHead: %s\n", formatOffset(info.SeekHead))
	fmt.Printf("Info: %s\n", formatOffset(info.Info))
	fmt.Printf("Tracks: %s\n", formatOffset(info.Tracks))
	fmt.Printf("Cues: %s\n", formatOffset(info.Cues))
	fmt.Printf("Tags: %s\n", formatOffset(info.Tags))
	fmt.Printf("Chapters: %s\n", formatOffset(info.Chapters))
	fmt.Printf("Attachments: %s\n", formatOffset(info.Attachments))
	fmt.Printf("First Cluster: %s\n", formatOffset(info.FirstCluster))
	if info.LargestVoidOffset == mkvtag.AbsentOffset {
		fmt.Printf("Largest Void: none\n")
	} else {
		fmt.Printf("Largest Void: offset=%d size=%d\n", info.LargestVoidOffset, info.LargestVoidSize)
	}
}

func formatOffset(offset int64) string {
	if offset == mkvtag.AbsentOffset {
		return "absent"
	}
	return fmt.Sprintf("%d", offset)
}
