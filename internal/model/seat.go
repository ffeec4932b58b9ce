package model

import (
    "encoding/json"
    "fmt"
    "strconv"
    "strings"
)

// MaxRows bounds the number of rows so that every row has a one or two
// letter label (A..Z, AA..ZZ).
const MaxRows = 26 * 27

// SeatState is the lifecycle state of a single seat in a showtime.
type SeatState string

const (
    SeatAvailable SeatState = "AVAILABLE"
    SeatHeld      SeatState = "HELD"
    SeatSold      SeatState = "SOLD"
)

// SeatID identifies a seat inside a showtime's layout.  Row is a zero based
// row index (0 => "A"), Number is the 1 based seat number inside the row.
// The textual form is the row label followed by the number, e.g. "A1".
type SeatID struct {
    Row    int
    Number int
}

// String renders the seat as its row label and number, e.g. "C12".
func (s SeatID) String() string { return RowLabel(s.Row) + strconv.Itoa(s.Number) }

// MarshalText implements encoding.TextMarshaler so seats travel as "A1" in JSON.
func (s SeatID) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses the "A1" form.
func (s *SeatID) UnmarshalText(b []byte) error {
    id, err := ParseSeatID(string(b))
    if err != nil {
        return err
    }
    *s = id
    return nil
}

// ParseSeatID converts a label such as "a1" or "AB12" into a SeatID.
func ParseSeatID(raw string) (SeatID, error) {
    s := strings.ToUpper(strings.TrimSpace(raw))
    i := 0
    for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
        i++
    }
    if i == 0 || i == len(s) {
        return SeatID{}, fmt.Errorf("%w: %q", ErrInvalidSeats, raw)
    }
    row, ok := RowIndex(s[:i])
    if !ok {
        return SeatID{}, fmt.Errorf("%w: %q", ErrInvalidSeats, raw)
    }
    n, err := strconv.Atoi(s[i:])
    if err != nil || n <= 0 {
        return SeatID{}, fmt.Errorf("%w: %q", ErrInvalidSeats, raw)
    }
    return SeatID{Row: row, Number: n}, nil
}

// ParseSeatIDs parses a list of seat labels, failing on the first bad one.
func ParseSeatIDs(raw []string) ([]SeatID, error) {
    out := make([]SeatID, 0, len(raw))
    for _, r := range raw {
        id, err := ParseSeatID(r)
        if err != nil {
            return nil, err
        }
        out = append(out, id)
    }
    return out, nil
}

// SeatLabels renders a seat list in its textual form.
func SeatLabels(ids []SeatID) []string {
    out := make([]string, len(ids))
    for i, id := range ids {
        out[i] = id.String()
    }
    return out
}

// RowLabel converts a zero-based index to an alphabetical row label like A, B, AA.
func RowLabel(i int) string {
    if i < 0 {
        return ""
    }
    res := []rune{}
    for {
        res = append(res, rune('A'+i%26))
        i = i/26 - 1
        if i < 0 {
            break
        }
    }
    for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
        res[j], res[k] = res[k], res[j]
    }
    return string(res)
}

// RowIndex converts a row label like A or AA into its zero-based index.
func RowIndex(label string) (int, bool) {
    if label == "" {
        return -1, false
    }
    n := 0
    for i := 0; i < len(label); i++ {
        ch := label[i]
        if ch < 'A' || ch > 'Z' {
            return -1, false
        }
        n = n*26 + int(ch-'A'+1)
    }
    return n - 1, true
}

// Seat is a read-only view of a seat and its current state.
type Seat struct {
    ID    SeatID
    State SeatState
}

// MarshalJSON renders the seat with its label, row and number split out for
// clients that draw a seat grid.
func (s Seat) MarshalJSON() ([]byte, error) {
    type alias struct {
        ID    string    `json:"seat_id"`
        Row   string    `json:"row"`
        Num   int       `json:"number"`
        State SeatState `json:"state"`
    }
    return json.Marshal(alias{ID: s.ID.String(), Row: RowLabel(s.ID.Row), Num: s.ID.Number, State: s.State})
}
