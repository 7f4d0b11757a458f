package sar

import "fmt"

// Channel identifies a polarization channel of the backscatter product.
type Channel string

// Polarization channels supported by the detector.
const (
	ChannelHH Channel = "HH"
	ChannelHV Channel = "HV"
)

// Channels lists all supported channels in canonical order.
var Channels = []Channel{ChannelHH, ChannelHV}

// ParseChannel converts a channel name to a Channel, accepting any case.
func ParseChannel(s string) (Channel, error) {
	switch s {
	case "HH", "hh", "Hh", "hH":
		return ChannelHH, nil
	case "HV", "hv", "Hv", "hV":
		return ChannelHV, nil
	}
	return "", fmt.Errorf("unknown channel %q (expected HH or HV)", s)
}

// Valid reports whether the channel is one of the supported polarizations.
func (c Channel) Valid() bool {
	return c == ChannelHH || c == ChannelHV
}
