package main

import (
	"fmt"

	"github.com/alfredjeanlab/baywatch/internal/reader"
	"github.com/alfredjeanlab/baywatch/internal/ui"
	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:     "decode <hex-frame>...",
	Short:   "Decode reader frames given as hex",
	GroupID: "system",
	Long: `Decode tag-reader frames given as hex text and print the tag IDs. Each
argument is one frame. Useful for checking the marker and tag length settings
against captured reader traffic.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		marker, _ := cmd.Flags().GetString("marker")
		tagLen, _ := cmd.Flags().GetInt("tag-length")

		dec, err := reader.NewDecoder(marker, tagLen)
		if err != nil {
			return err
		}

		type result struct {
			Frame string `json:"frame"`
			TagID string `json:"tag_id,omitempty"`
			Error string `json:"error,omitempty"`
		}
		var (
			results []result
			failed  int
		)
		for _, arg := range args {
			r := result{Frame: arg}
			if tag, err := dec.DecodeHex(arg); err != nil {
				r.Error = err.Error()
				failed++
			} else {
				r.TagID = tag
			}
			results = append(results, r)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, results); err != nil {
				return err
			}
		} else {
			for _, r := range results {
				if r.Error != "" {
					fmt.Fprintf(out, "%s  %s\n", ui.RenderWarn("invalid"), r.Error)
					continue
				}
				fmt.Fprintf(out, "%s  %s\n", ui.RenderOK("tag"), r.TagID)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d frames could not be decoded", failed, len(args))
		}
		return nil
	},
}

func init() {
	decodeCmd.Flags().String("marker", reader.DefaultMarker, "hex prefix that starts a valid frame")
	decodeCmd.Flags().Int("tag-length", reader.DefaultTagHexLength, "number of hex characters in a tag ID")
}
