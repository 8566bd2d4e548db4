// Package chart renders a latency time series to a static SVG line
// chart. No third-party charting library appears anywhere in the
// example corpus, so this stays on the standard library
// (fmt/strings/time) rather than
// reaching for an out-of-pack dependency purely for this one concern;
// see DESIGN.md.
package chart

import (
	"fmt"
	"strings"
	"time"

	"github.com/schuellerf/bufferbane/client"
)

// Options configures chart dimensions and styling.
type Options struct {
	Width  int
	Height int
	Title  string
}

// DefaultOptions mirrors the original implementation's default chart size.
func DefaultOptions() Options {
	return Options{Width: 1024, Height: 400, Title: "Latency"}
}

const margin = 40

// RenderLatencySeriesSVG renders a latency time series (one point per
// measurement with a non-nil RTT) to a standalone SVG document.
func RenderLatencySeriesSVG(measurements []client.Measurement, opts Options) string {
	if opts.Width == 0 || opts.Height == 0 {
		opts = DefaultOptions()
	}

	type point struct {
		t   int64
		rtt float64
	}
	var points []point
	for _, m := range measurements {
		if m.RTTMillis != nil {
			points = append(points, point{t: m.TimestampUnix, rtt: *m.RTTMillis})
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		opts.Width, opts.Height, opts.Width, opts.Height)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="white"/>`+"\n", opts.Width, opts.Height)
	if opts.Title != "" {
		fmt.Fprintf(&b, `<text x="%d" y="20" font-size="16" font-family="sans-serif">%s</text>`+"\n", margin, escapeXML(opts.Title))
	}

	if len(points) == 0 {
		b.WriteString(`<text x="50%" y="50%" text-anchor="middle" font-family="sans-serif">no data</text>` + "\n")
		b.WriteString(`</svg>`)
		return b.String()
	}

	minT, maxT := points[0].t, points[0].t
	minRTT, maxRTT := points[0].rtt, points[0].rtt
	for _, p := range points {
		if p.t < minT {
			minT = p.t
		}
		if p.t > maxT {
			maxT = p.t
		}
		if p.rtt < minRTT {
			minRTT = p.rtt
		}
		if p.rtt > maxRTT {
			maxRTT = p.rtt
		}
	}
	if maxRTT == minRTT {
		maxRTT = minRTT + 1 // avoid a zero-height plot for a flat series
	}
	if maxT == minT {
		maxT = minT + 1
	}

	plotW := float64(opts.Width - 2*margin)
	plotH := float64(opts.Height - 2*margin)

	xFor := func(t int64) float64 {
		return float64(margin) + plotW*float64(t-minT)/float64(maxT-minT)
	}
	yFor := func(rtt float64) float64 {
		return float64(margin) + plotH*(1-(rtt-minRTT)/(maxRTT-minRTT))
	}

	b.WriteString(`<polyline fill="none" stroke="#2563eb" stroke-width="2" points="`)
	for i, p := range points {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%.1f,%.1f", xFor(p.t), yFor(p.rtt))
	}
	b.WriteString(`"/>` + "\n")

	fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="10" font-family="sans-serif">%s</text>`+"\n",
		margin, opts.Height-10, time.Unix(minT, 0).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="10" font-family="sans-serif" text-anchor="end">%s</text>`+"\n",
		opts.Width-margin, opts.Height-10, time.Unix(maxT, 0).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="10" font-family="sans-serif">%.1fms</text>`+"\n",
		2, margin, maxRTT)
	fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="10" font-family="sans-serif">%.1fms</text>`+"\n",
		2, opts.Height-margin, minRTT)

	b.WriteString(`</svg>`)
	return b.String()
}

func escapeXML(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(s)
}
