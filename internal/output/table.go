package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jbweber/vmdev/api/v1alpha1"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatDeviceSet formats a DeviceSet as one row with per-type device
// counts.
func (f *TableFormatter) FormatDeviceSet(ds *v1alpha1.DeviceSet) (string, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tVMID\tDEVICES\tDISPLAY\tPHASE\tAGE")
	}

	display := ds.Spec.DisplayNetwork
	if display == "" {
		display = "-"
	}
	age := "-"
	if !ds.CreationTimestamp.IsZero() {
		age = formatAge(time.Since(ds.CreationTimestamp.Time))
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
		ds.Name, ds.Spec.VMID, len(ds.Spec.Devices), display, ds.GetPhase(), age)

	_ = w.Flush()
	return buf.String(), nil
}

// FormatDevices formats a device listing as a table.
func (f *TableFormatter) FormatDevices(devices []DeviceSummary) (string, error) {
	if len(devices) == 0 {
		return "No devices found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "TYPE\tDEVICE\tALIAS\tADDRESS\tDETAIL")
	}
	for _, d := range devices {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.Type, dash(d.Device), dash(d.Alias), dash(d.Address), dash(d.Detail))
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatDomains formats a domain listing as a table.
func (f *TableFormatter) FormatDomains(domains []DomainSummary) (string, error) {
	if len(domains) == 0 {
		return "No domains found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tDEVICESET\tPHASE\tDEVICES")
	}
	for _, d := range domains {
		devices := "-"
		if d.DeviceSet != "" {
			devices = fmt.Sprintf("%d", d.Devices)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.Name, d.State, dash(d.DeviceSet), dash(d.Phase), devices)
	}

	_ = w.Flush()
	return buf.String(), nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}
	secs := int(d.Seconds())
	days := secs / 86400
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case days < 1:
		return fmt.Sprintf("%dh", secs/3600)
	case days < 7:
		return fmt.Sprintf("%dd", days)
	case days < 56:
		return fmt.Sprintf("%dw", days/7)
	case days >= 365:
		return fmt.Sprintf("%dy", days/365)
	default:
		return fmt.Sprintf("%dd", days)
	}
}
