package models

import "fmt"

// Window is one walk-forward step. Both ranges are half-open row indices.
type Window struct {
	Number     int
	TrainStart int
	TrainEnd   int
	TestStart  int
	TestEnd    int
}

func (w Window) TrainLen() int { return w.TrainEnd - w.TrainStart }
func (w Window) TestLen() int  { return w.TestEnd - w.TestStart }

func (w Window) String() string {
	return fmt.Sprintf("#%d train=[%d,%d) test=[%d,%d)", w.Number, w.TrainStart, w.TrainEnd, w.TestStart, w.TestEnd)
}

// Plan is an ordered sequence of windows over one table.
type Plan []Window

// Validate checks ordering and embargo for every window and that test
// ranges tile forward without overlap.
func (p Plan) Validate(embargo int) error {
	for i, w := range p {
		if w.TrainStart < 0 || w.TrainEnd < w.TrainStart || w.TestEnd <= w.TestStart {
			return fmt.Errorf("window %s: malformed ranges", w)
		}
		if w.TrainLen() > 0 && w.TrainEnd-1+embargo >= w.TestStart {
			return fmt.Errorf("window %s: train end within embargo %d of test start", w, embargo)
		}
		if i > 0 && w.TestStart < p[i-1].TestEnd {
			return fmt.Errorf("window %s overlaps %s", w, p[i-1])
		}
	}
	return nil
}
