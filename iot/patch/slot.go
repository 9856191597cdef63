package patch

// SlotSize is the size of a single credential slot in bytes
const SlotSize = 2048

// MaxValueSize is the largest value that fits into a slot together with its terminator
const MaxValueSize = SlotSize - 1

// Slot names
const (
	SlotEndpoint  = "endpoint"
	SlotThingName = "thing_name"
	SlotWifiSSID  = "wifi_ssid"
	SlotWifiPass  = "wifi_pass"
)

// Slot is a named credential field at a fixed position of the image
type Slot struct {
	Name  string
	Index int
	// File is the name of the source file inside the credentials directory
	File string
}

// Offset returns the byte offset of the slot in the image
func (s Slot) Offset() int {
	return s.Index * SlotSize
}

var slots = [...]Slot{
	{Name: SlotEndpoint, Index: 0, File: "endpoint.txt"},
	{Name: SlotThingName, Index: 1, File: "thing_name.txt"},
	{Name: SlotWifiSSID, Index: 2, File: "wifi_ssid.txt"},
	{Name: SlotWifiPass, Index: 3, File: "wifi_pass.txt"},
}

// NumSlots is the number of slots in an image
const NumSlots = len(slots)

// MinImageSize is the size of an image whose last value is empty
const MinImageSize = (NumSlots-1)*SlotSize + 1

// Slots returns the slot table in image order
func Slots() []Slot {
	return append([]Slot(nil), slots[:]...)
}

// SlotByName returns the slot with the given name
func SlotByName(name string) (Slot, bool) {
	for _, s := range slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}
