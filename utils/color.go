package utils

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

var supportedColors = []color.Attribute{
	color.FgCyan,
	color.FgHiBlue,
	color.FgHiWhite,
	color.FgHiGreen,
	color.FgHiMagenta,
	color.FgHiCyan,
	color.FgMagenta,
	color.FgYellow,
}

// ColorPicker assigns a color to each node whose output is printed.
type ColorPicker interface {
	NextColor() *color.Color
}

type colorPicker struct {
	lock sync.Mutex
	next int
}

func NewColorPicker() ColorPicker {
	return &colorPicker{}
}

// NextColor starts over with the first color once every supported
// color has been handed out.
func (c *colorPicker) NextColor() *color.Color {
	c.lock.Lock()
	defer c.lock.Unlock()

	pick := supportedColors[c.next%len(supportedColors)]
	c.next++
	return color.New(pick)
}

// ColorAndPrepend reads lines from [reader] and writes them to [writer]
// prefixed with "[prefix] " and wrapped in [c].
// Returns when [reader] is closed.
func ColorAndPrepend(reader io.Reader, writer io.Writer, prefix string, c *color.Color) {
	go func() {
		// when the process exits Scan hits EOF and the goroutine returns
		scanner := bufio.NewScanner(reader)
		for scanner.Scan() {
			txt := c.Sprintf("[%s] %s", prefix, scanner.Text())
			if _, err := fmt.Fprintln(writer, txt); err != nil {
				return
			}
		}
	}()
}
