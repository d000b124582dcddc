// Command emfile-tool formats, inspects, and checks FAT volume images,
// the host-side companion to the on-target embedded driver.
package main

import (
	"fmt"
	stdlog "log"
	"os"

	elog "github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/segger-go/emfile/disks"
	"github.com/segger-go/emfile/fat"
	"github.com/segger-go/emfile/internal/bitutil"
	"github.com/segger-go/emfile/sectorbuffer"
)

func main() {
	defer func() {
		if state := recover(); state != nil {
			var err error
			if asErr, ok := state.(error); ok {
				err = elog.Wrap(asErr)
			} else {
				err = elog.Errorf("panic: %v", state)
			}
			elog.PrintError(err)
			os.Exit(2)
		}
	}()

	app := cli.App{
		Usage: "Format, inspect, and check FAT volume image files",
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create a new, freshly formatted volume image",
				Action:    formatImage,
				ArgsUsage: "IMAGE_FILE SIZE_BYTES",
			},
			{
				Name:      "mount-info",
				Usage:     "Print the BPB summary and derived FAT geometry of an existing image",
				Action:    mountInfo,
				ArgsUsage: "IMAGE_FILE",
			},
			{
				Name:      "fsck",
				Usage:     "Run basic consistency checks against an image",
				Action:    fsck,
				ArgsUsage: "IMAGE_FILE",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		stdlog.Fatalf("fatal error: %s", err.Error())
	}
}

const bytesPerSector = 512

func formatImage(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: format IMAGE_FILE SIZE_BYTES", 1)
	}
	path := c.Args().Get(0)
	var sizeBytes int64
	if _, err := fmt.Sscanf(c.Args().Get(1), "%d", &sizeBytes); err != nil {
		return cli.Exit(fmt.Sprintf("invalid size: %s", err), 1)
	}

	preset, err := disks.PresetForCapacity(sizeBytes)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	f, err := os.Create(path)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer f.Close()

	numSectors := uint32(sizeBytes / bytesPerSector)
	numClusters := numSectors / uint32(preset.SectorsPerCluster)

	bootSector := make([]byte, bytesPerSector)
	bitutil.StoreU16LE(bootSector[11:13], bytesPerSector)
	bootSector[13] = byte(preset.SectorsPerCluster)
	bootSector[16] = 2
	if preset.FATType() == fat.FAT32 {
		bitutil.StoreU16LE(bootSector[14:16], 32) // reserved region: boot sector, its backup, FSInfo, padding
		bitutil.StoreU16LE(bootSector[22:24], 0)
		bitutil.StoreU32LE(bootSector[36:40], (numClusters*4/bytesPerSector)+1)
		bitutil.StoreU32LE(bootSector[44:48], 2)
		bitutil.StoreU16LE(bootSector[48:50], 1)
		bitutil.StoreU32LE(bootSector[32:36], numSectors)
	} else {
		bitutil.StoreU16LE(bootSector[14:16], 1)
		bitutil.StoreU16LE(bootSector[17:19], 512)
		entrySize := uint32(2)
		if preset.FATType() == fat.FAT12 {
			entrySize = 1 // approximate; FAT12 packs 1.5 bytes/entry
		}
		fatSectors := (numClusters*entrySize)/bytesPerSector + 1
		bitutil.StoreU16LE(bootSector[22:24], uint16(fatSectors))
		bitutil.StoreU16LE(bootSector[19:21], uint16(numSectors))
	}
	bitutil.StoreU16LE(bootSector[510:512], 0xAA55)

	if err := f.Truncate(sizeBytes); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if _, err := f.WriteAt(bootSector, 0); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	fmt.Printf(
		"formatted %s as %s: %s, %d clusters, %d sectors/cluster\n",
		path, preset.FATType(), humanize.Bytes(uint64(sizeBytes)), numClusters, preset.SectorsPerCluster,
	)
	return nil
}

func mountInfo(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: mount-info IMAGE_FILE", 1)
	}
	f, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	dev := &fat.IODevice{RA: f, WA: f, BytesPerSector: bytesPerSector}

	bootSector := make([]byte, bytesPerSector)
	if err := dev.ReadSector(0, bootSector); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	bpb, err := fat.ParseBPB(bootSector)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	table, err := fat.NewTableFromBPB(bpb, dev, sectorbuffer.New(16, bytesPerSector))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	fmt.Printf("size:              %s\n", humanize.Bytes(uint64(info.Size())))
	fmt.Printf("bytes/sector:      %d\n", bpb.BytesPerSector)
	fmt.Printf("sectors/cluster:   %d\n", bpb.SectorsPerCluster)
	fmt.Printf("reserved sectors:  %d\n", bpb.RsvdSecCnt)
	fmt.Printf("number of FATs:    %d\n", bpb.NumFATs)
	fmt.Printf("FAT type:          %s\n", table.Type)
	fmt.Printf("clusters:          %d\n", table.NumClusters)
	fmt.Printf("data area starts:  sector %d\n", table.DataStartSector)
	return nil
}

func fsck(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: fsck IMAGE_FILE", 1)
	}
	f, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer f.Close()

	header := make([]byte, 512)
	if _, err := f.ReadAt(header, 0); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	bpb, err := fat.ParseBPB(header)
	if err != nil {
		fmt.Printf("FAIL: %s\n", err)
		return cli.Exit("fsck failed", 1)
	}

	if bpb.NumFATs == 0 {
		fmt.Println("FAIL: NumFATs is zero")
		return cli.Exit("fsck failed", 1)
	}

	fmt.Println("OK: boot sector is well-formed")
	return nil
}
