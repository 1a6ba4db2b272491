package signature

import (
	"crypto/md5"
	"encoding/hex"
	"io"

	"hamustro/models"
)

// Session derives the session identifier a collector recomputes for every
// incoming Collection: hex md5 of
// "<device_id>:<client_id>:<system_version>:<product_version>".
func Session(c *models.Collection) string {
	session := md5.New()
	io.WriteString(session, c.DeviceID)
	io.WriteString(session, ":")
	io.WriteString(session, c.ClientID)
	io.WriteString(session, ":")
	io.WriteString(session, c.SystemVersion)
	io.WriteString(session, ":")
	io.WriteString(session, c.ProductVersion)
	return hex.EncodeToString(session.Sum(nil))
}
