package registry

import "testing"

func TestFindPublicTag(t *testing.T) {
	e, ok := Find(PixelData, "")
	if !ok {
		t.Fatalf("expected PixelData to be found")
	}
	if e.Name != "PixelData" {
		t.Fatalf("got name %q, want PixelData", e.Name)
	}
	if len(e.AllowedVRs) != 2 || e.AllowedVRs[0] != "OB" || e.AllowedVRs[1] != "OW" {
		t.Fatalf("got allowed VRs %v, want [OB OW]", e.AllowedVRs)
	}
}

func TestTagNameUnknown(t *testing.T) {
	unknown := NewTag(0x0009, 0x0001)
	if got := TagName(unknown, ""); got != "Unknown" {
		t.Fatalf("got %q, want Unknown", got)
	}
}

func TestIsLUTDescriptorTag(t *testing.T) {
	if !IsLUTDescriptorTag(LUTDescriptor) {
		t.Fatalf("expected LUTDescriptor to be a LUT descriptor tag")
	}
	if IsLUTDescriptorTag(PixelData) {
		t.Fatalf("did not expect PixelData to be a LUT descriptor tag")
	}
}

func TestUIDName(t *testing.T) {
	name, ok := UIDName("1.2.840.10008.1.2.1")
	if !ok || name != "Explicit VR Little Endian" {
		t.Fatalf("got (%q, %v), want (Explicit VR Little Endian, true)", name, ok)
	}
	if _, ok := UIDName("9.9.9"); ok {
		t.Fatalf("expected unknown UID to be not found")
	}
}

func TestPrivateEntry(t *testing.T) {
	RegisterPrivate(0x0041, 0x10, "ACME CORP", Entry{Name: "AcmeThing", AllowedVRs: []string{"LO"}})
	tag := NewTag(0x0041, 0x1003)
	e, ok := Find(tag, "ACME CORP")
	if !ok || e.Name != "AcmeThing" {
		t.Fatalf("got (%v, %v), want AcmeThing entry", e, ok)
	}
	if _, ok := Find(tag, "OTHER CORP"); ok {
		t.Fatalf("expected private entry for unrelated creator to be absent")
	}
}
