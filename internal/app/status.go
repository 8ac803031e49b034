package app

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/hitoshi/secfeed/internal/model"
)

// printStatus はソースごとの取得結果とキャッシュ統計を表形式で出力する。
// 一度も取得していないソースは "-" と表示する。
func printStatus(w io.Writer, sources []model.Source, snap *model.Snapshot, st model.Stats) {
	lastUpdated := "Never"
	if st.LastUpdated != nil {
		lastUpdated = fmt.Sprintf("%s (%s)", st.LastUpdated.Format(time.RFC3339), humanize.Time(*st.LastUpdated))
	}

	fmt.Fprintf(w, "Last updated: %s\n", lastUpdated)
	fmt.Fprintf(w, "Sources: %d  Articles: %s  Images: %s  Cache size: %s\n\n",
		len(sources),
		humanize.Comma(int64(st.ItemCount)),
		humanize.Comma(int64(st.AssetCount)),
		humanize.Bytes(uint64(st.TotalBytes)),
	)

	rows := make([][]string, 0, len(sources))
	for _, src := range sources {
		status, ok := snap.FeedStatus[src.Name]
		if !ok {
			rows = append(rows, []string{src.Name, "-", "-", "-", ""})
			continue
		}
		result := color.GreenString("OK")
		if !status.Success {
			result = color.RedString("FAIL")
		}
		errMsg := ""
		if status.Error != nil {
			errMsg = *status.Error
		}
		rows = append(rows, []string{
			src.Name,
			result,
			strconv.Itoa(status.ItemCount),
			humanize.Time(status.LastFetch),
			errMsg,
		})
	}

	table := newStatusTable(w)
	table.Header([]string{"Source", "Status", "Items", "Last fetch", "Error"})
	table.Bulk(rows)
	table.Render()
}

func newStatusTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
}
