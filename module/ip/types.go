package ip

import (
	"github.com/juyss/librespeed-vue/module"
)

// Address is the caller address as seen by this server. The address is not
// validated, it may be anything a trusted proxy put in the forwarding header.
type Address struct {
	IP string `json:"ip"`
	*module.Location
}
