package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"sfbridge/internal/cli/ui"
	"sfbridge/internal/protocol"
	"sfbridge/internal/shared/utils"
)

var replayHexBytes int

type replayRecord struct {
	Index      int    `json:"index"`
	Offset     int64  `json:"offset"`
	Type       string `json:"type"`
	Conn       uint16 `json:"conn"`
	Port       uint16 `json:"port"`
	Len        int    `json:"len"`
	PayloadHex string `json:"payload_hex"`
}

var replayCmd = &cobra.Command{
	Use:   "replay <capture.sf.bin>",
	Short: "Decode a raw capture file to JSONL on stdout",
	Long: `Re-run the frame decoder over a capture file and print one JSON
line per frame. A capture holds frames back to back, so any leftover bytes
at the end indicate a truncated recording.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().IntVar(&replayHexBytes, "hex-bytes", 96, "Payload bytes included in each record, 0 for all")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	dec := protocol.NewDecoder()
	var (
		offset int64
		frames int
		buf    [4096]byte
	)

	for {
		n, readErr := f.Read(buf[:])
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				fr, raw, ok := dec.Pop()
				if !ok {
					break
				}
				hexBytes := replayHexBytes
				if hexBytes <= 0 {
					hexBytes = len(fr.Payload)
				}
				rec := replayRecord{
					Index:      frames,
					Offset:     offset,
					Type:       fr.Type.String(),
					Conn:       fr.Conn,
					Port:       fr.Port,
					Len:        len(fr.Payload),
					PayloadHex: utils.HexHead(fr.Payload, hexBytes),
				}
				line, err := json.Marshal(rec)
				if err != nil {
					return err
				}
				line = append(line, '\n')
				if _, err := out.Write(line); err != nil {
					return err
				}
				frames++
				offset += int64(len(raw))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	if err := out.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, ui.Success(fmt.Sprintf("Decoded %d frames from %s", frames, args[0])))
	if trailing := dec.Buffered(); trailing > 0 {
		fmt.Fprintln(os.Stderr, ui.Warning(fmt.Sprintf("%d trailing bytes did not form a complete frame", trailing)))
	}
	return nil
}
