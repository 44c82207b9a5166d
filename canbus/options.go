package canbus

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// Transport kinds accepted by Options.Kind.
const (
	KindSocketCAN = "socketcan"
	KindSLCAN     = "slcan"
	KindPcap      = "pcap"
)

// PortOptions describes the serial connection parameters used when opening a
// serial-line CAN adapter.
type PortOptions struct {
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
	DataBits int    `json:"data_bits" yaml:"data_bits"`
	StopBits int    `json:"stop_bits" yaml:"stop_bits"`
	Parity   string `json:"parity" yaml:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	opts.Parity = parity
	return opts, nil
}

// SerialMode converts the port options into the serial.Mode structure required by
// go.bug.st/serial when opening a port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	} else {
		mode.StopBits = serial.OneStopBit
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}

	return mode, nil
}

// Options selects and configures a transport back-end.
type Options struct {
	Kind       string      `json:"kind" yaml:"kind"`
	Interface  string      `json:"interface" yaml:"interface"`
	SerialPath string      `json:"serial_path" yaml:"serial_path"`
	Serial     PortOptions `json:"serial" yaml:"serial"`
	// Bitrate is the bus bitrate in bit/s programmed into serial adapters.
	Bitrate int `json:"bitrate" yaml:"bitrate"`
	// PcapFile is replayed when Kind is pcap.
	PcapFile string `json:"pcap_file" yaml:"pcap_file"`
	// RecordFile, when set, captures every received frame into a pcap file.
	RecordFile string `json:"record_file" yaml:"record_file"`
}

// Dialer returns the Dialer for the configured back-end.
func (o Options) Dialer() (Dialer, string, error) {
	var (
		dial Dialer
		name string
	)
	switch strings.ToLower(strings.TrimSpace(o.Kind)) {
	case "", KindSocketCAN:
		ifname := o.Interface
		if ifname == "" {
			ifname = DefaultInterface
		}
		dial, name = DialSocketCAN(ifname), "socketcan:"+ifname
	case KindSLCAN:
		if o.SerialPath == "" {
			return nil, "", fmt.Errorf("slcan transport requires a serial path")
		}
		dial, name = DialSLCAN(o.SerialPath, o.Serial, o.Bitrate), "slcan:"+o.SerialPath
	case KindPcap:
		if o.PcapFile == "" {
			return nil, "", fmt.Errorf("pcap transport requires a capture file")
		}
		dial, name = OpenPcap(o.PcapFile), "pcap:"+o.PcapFile
	default:
		return nil, "", fmt.Errorf("unknown transport kind %q", o.Kind)
	}
	if o.RecordFile != "" {
		dial = RecordTo(o.RecordFile, dial)
	}
	return dial, name, nil
}

// NewTransport builds a closed Bus for the configured back-end.
func NewTransport(o Options) (*Bus, error) {
	dial, name, err := o.Dialer()
	if err != nil {
		return nil, err
	}
	return NewBus(name, dial), nil
}
