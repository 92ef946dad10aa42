package actuator

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOPin is a Pin backed by a GPIO character device line.
type GPIOPin struct {
	line *gpiocdev.Line
}

// NewGPIOPin requests offset on chip (for example "gpiochip0") as an output,
// initially at its inactive level. With activeLow set the physical level is
// inverted, for relay boards that energise on a low input.
func NewGPIOPin(chip string, offset int, activeLow bool, consumer string) (*GPIOPin, error) {
	options := []gpiocdev.LineReqOption{
		gpiocdev.WithConsumer(consumer),
		gpiocdev.AsOutput(0),
	}
	if activeLow {
		options = append(options, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(chip, offset, options...)
	if err != nil {
		return nil, fmt.Errorf("cannot request line %v on %v: %w", offset, chip, err)
	}
	return &GPIOPin{line: line}, nil
}

func (p *GPIOPin) Set(active bool) error {
	value := 0
	if active {
		value = 1
	}
	return p.line.SetValue(value)
}

func (p *GPIOPin) Close() error {
	return p.line.Close()
}
