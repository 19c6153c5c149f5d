package selfroles

import (
	"strconv"
	"strings"
)

// CustomIDPrefix starts the custom ID of every self-role button.
const CustomIDPrefix = "selfrole_"

// CustomID encodes the button for roleID in config configID.
func CustomID(configID uint, roleID string) string {
	return CustomIDPrefix + strconv.FormatUint(uint64(configID), 10) + "_" + roleID
}

// ParseCustomID decodes a button custom ID made by CustomID.
func ParseCustomID(customID string) (configID uint, roleID string, ok bool) {
	rest, found := strings.CutPrefix(customID, CustomIDPrefix)
	if !found {
		return 0, "", false
	}
	idPart, roleID, found := strings.Cut(rest, "_")
	if !found || roleID == "" {
		return 0, "", false
	}
	id, err := strconv.ParseUint(idPart, 10, 0)
	if err != nil || id == 0 {
		return 0, "", false
	}
	return uint(id), roleID, true
}
