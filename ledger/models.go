package ledger

import (
	"encoding/json"
	"time"
)

// Status issuance record status; revocation is one way, there is no transition
// back from StatusRevoked.
type Status int

const (
	StatusNone Status = iota
	StatusActive
	StatusRevoked
)

var (
	statusToStr = map[Status]string{}
	strToStatus = map[string]Status{}
)

func init() {
	for status, str := range map[Status]string{
		StatusNone:    "",
		StatusActive:  "active",
		StatusRevoked: "revoked",
	} {
		statusToStr[status] = str
		strToStatus[str] = status
	}
}

func (st Status) String() string               { return statusToStr[st] }
func (st Status) MarshalJSON() ([]byte, error) { return json.Marshal(st.String()) }
func (st *Status) UnmarshalJSON(data []byte) error {
	var s string

	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	*st = strToStatus[s]

	return nil
}

func StrToStatus(s string) Status { return strToStatus[s] }

// Entry one issued certificate. Rows are appended at issuance and mutated only
// by revocation; they are never deleted.
type Entry struct {
	Serial     uint64 `gorm:"primaryKey;autoIncrement:false"`
	CommonName string `gorm:"index;size:256"`
	IssuedAt   time.Time
	Status     string `gorm:"size:10"`
	RevokedAt  *time.Time
}

// Counter durable monotonic counter; the single source of truth for the next
// free serial and CRL number.
type Counter struct {
	Name  string `gorm:"primaryKey;size:20"`
	Value uint64
}

const (
	counterSerial    = "serial"
	counterCRLNumber = "crlnumber"
)
