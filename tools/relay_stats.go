package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
	"whiteboard-relay/domain"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func main() {
	addr := flag.String("addr", "http://localhost:8000", "Base URL of the relay")
	timeout := flag.Duration("timeout", 5*time.Second, "HTTP timeout")
	flag.Parse()

	stats, err := fetchStats(*addr, *timeout)
	if err != nil {
		log.Fatal("Error while fetching stats: ", err)
	}

	header := color.New(color.BgBlack, color.FgGreen)
	fmt.Println(header.Render(fmt.Sprintf(" %s: %d rooms, %d connections ",
		*addr, stats.Rooms, stats.Connections)))
	if p := stats.Process; p != nil {
		fmt.Printf("pid %d (%s), rss %s, cpu %.1f%%\n",
			p.PID, p.Status, humanize.Bytes(p.RSSBytes), p.CPUPercent)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Room", "Members"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, room := range stats.RoomMembers {
		table.Append([]string{string(room.ID), strconv.Itoa(room.Members)})
	}
	table.Render()
}

func fetchStats(addr string, timeout time.Duration) (domain.RelayStats, error) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(addr + "/stats")
	if err != nil {
		return domain.RelayStats{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.RelayStats{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var stats domain.RelayStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return domain.RelayStats{}, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}
