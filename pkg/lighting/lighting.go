// Package lighting drives the scan station's lamp board over a serial
// line. The board accepts single command bytes; it has a white lamp for
// normal labels and a UV lamp for fluorescent ink.
package lighting

import (
	"errors"
	"fmt"
	"sync"

	"go.bug.st/serial"

	"github.com/labelscan/go-labelscan/internal/log"
)

// Mode selects which lamp is lit.
type Mode string

const (
	Off   Mode = "off"
	White Mode = "white"
	UV    Mode = "uv"
)

// Command bytes understood by the lamp board.
const (
	cmdOff   byte = 0x00
	cmdWhite byte = 0x01
	cmdUV    byte = 0x02
)

// ErrNoPort is returned when none of the candidate serial ports opens.
var ErrNoPort = errors.New("lighting: no lamp board found")

// ParseMode validates a mode name from the command channel.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Off, White, UV:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("lighting: unknown mode %q", s)
	}
}

func (m Mode) command() byte {
	switch m {
	case White:
		return cmdWhite
	case UV:
		return cmdUV
	default:
		return cmdOff
	}
}

// port is the subset of serial.Port the controller uses.
type port interface {
	Write(p []byte) (int, error)
	Close() error
}

// Controller owns the serial connection to the lamp board.
type Controller struct {
	mu       sync.Mutex
	port     port
	portName string
	mode     Mode
}

// Open tries each candidate port in order and returns a controller on
// the first one that opens. The lamp starts off.
func Open(ports []string, baudRate int) (*Controller, error) {
	if baudRate <= 0 {
		baudRate = 9600
	}
	for _, name := range ports {
		p, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
		if err != nil {
			log.Debug("lamp board not on port", "port", name, "err", err)
			continue
		}
		log.Info("lamp board connected", "port", name, "baud", baudRate)
		c := &Controller{port: p, portName: name, mode: Off}
		if err := c.SetMode(Off); err != nil {
			p.Close()
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: tried %v", ErrNoPort, ports)
}

// SetMode switches the lit lamp.
func (c *Controller) SetMode(m Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return ErrNoPort
	}
	if _, err := c.port.Write([]byte{m.command()}); err != nil {
		return fmt.Errorf("lighting: set %s on %s: %w", m, c.portName, err)
	}
	c.mode = m
	return nil
}

// Mode returns the currently lit lamp.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Close turns the lamps off and releases the port.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return nil
	}
	c.port.Write([]byte{cmdOff})
	err := c.port.Close()
	c.port = nil
	return err
}
