// Package catalog holds the static table of firmware images a factory
// package may carry, keyed by the logical partition each image targets.
package catalog

// Type classifies an image by when it must be flashed.
type Type int

const (
	// BootCritical images are flashed before the super partition is
	// synced, so the device can reboot into userspace fastboot with a
	// consistent boot chain.
	BootCritical Type = iota
	// Normal images are flashed after the super partition sync.
	Normal
	// Extra images are only flashed on explicit request.
	Extra
)

// Entry describes one known image.
type Entry struct {
	// Nickname is the logical name used on the command line and in
	// requirement scripts. Empty for secondary-slot-only variants.
	Nickname string
	// ImageFile is the default file name inside the package.
	ImageFile string
	// SignatureFile is the optional signature entry name.
	SignatureFile string
	// Partition is the base partition name, before slot suffixing.
	Partition string
	// OptionalIfAbsent allows the image to be skipped when the source
	// does not contain it. The requirements gate may clear this when
	// the device declares the partition mandatory.
	OptionalIfAbsent bool
	// Type is the flash ordering category.
	Type Type
}

// IsSecondary reports whether the entry is the secondary-slot variant
// of another image (boot_other.img and friends).
func (e *Entry) IsSecondary() bool {
	return e.Nickname == ""
}

var table = []Entry{
	{"boot", "boot.img", "boot.sig", "boot", false, BootCritical},
	{"bootloader", "bootloader.img", "", "bootloader", true, Extra},
	{"init_boot", "init_boot.img", "init_boot.sig", "init_boot", true, BootCritical},
	{"", "boot_other.img", "boot.sig", "boot", true, Normal},
	{"cache", "cache.img", "cache.sig", "cache", true, Extra},
	{"dtbo", "dtbo.img", "dtbo.sig", "dtbo", true, BootCritical},
	{"dts", "dt.img", "dt.sig", "dts", true, BootCritical},
	{"odm", "odm.img", "odm.sig", "odm", true, Normal},
	{"odm_dlkm", "odm_dlkm.img", "odm_dlkm.sig", "odm_dlkm", true, Normal},
	{"product", "product.img", "product.sig", "product", true, Normal},
	{"pvmfw", "pvmfw.img", "pvmfw.sig", "pvmfw", true, BootCritical},
	{"radio", "radio.img", "", "radio", true, Extra},
	{"recovery", "recovery.img", "recovery.sig", "recovery", true, BootCritical},
	{"super", "super.img", "super.sig", "super", true, Extra},
	{"system", "system.img", "system.sig", "system", false, Normal},
	{"system_dlkm", "system_dlkm.img", "system_dlkm.sig", "system_dlkm", true, Normal},
	{"system_ext", "system_ext.img", "system_ext.sig", "system_ext", true, Normal},
	{"", "system_other.img", "system.sig", "system", true, Normal},
	{"userdata", "userdata.img", "userdata.sig", "userdata", true, Extra},
	{"vbmeta", "vbmeta.img", "vbmeta.sig", "vbmeta", true, BootCritical},
	{"vbmeta_system", "vbmeta_system.img", "vbmeta_system.sig", "vbmeta_system", true, BootCritical},
	{"vbmeta_vendor", "vbmeta_vendor.img", "vbmeta_vendor.sig", "vbmeta_vendor", true, BootCritical},
	{"vendor", "vendor.img", "vendor.sig", "vendor", true, Normal},
	{"vendor_boot", "vendor_boot.img", "vendor_boot.sig", "vendor_boot", true, BootCritical},
	{"vendor_dlkm", "vendor_dlkm.img", "vendor_dlkm.sig", "vendor_dlkm", true, Normal},
	{"vendor_kernel_boot", "vendor_kernel_boot.img", "vendor_kernel_boot.sig", "vendor_kernel_boot", true, BootCritical},
	{"", "vendor_other.img", "vendor.sig", "vendor", true, Normal},
}

// Table returns a fresh copy of the image table. Each flashing run
// works on its own copy so that requirement-script overrides never
// leak between runs.
func Table() []Entry {
	out := make([]Entry, len(table))
	copy(out, table)
	return out
}

// Find returns the entry with the given nickname, or nil.
func Find(entries []Entry, nickname string) *Entry {
	if nickname == "" {
		return nil
	}
	for i := range entries {
		if entries[i].Nickname == nickname {
			return &entries[i]
		}
	}
	return nil
}
