package device

import (
	"errors"
	"testing"

	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"
)

func mustElement(t *testing.T, markup string) *etree.Element {
	t.Helper()
	el, err := parseRoot(markup)
	if err != nil {
		t.Fatalf("parseRoot() error = %v", err)
	}
	return el
}

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		name      string
		markup    string
		wantAddr  Address
		wantAlias string
	}{
		{
			name:      "address and alias",
			markup:    `<sound model="ac97"><alias name="test0"/><address type="pci" domain="0x0000" bus="0x05" slot="0x11" function="0x3"/></sound>`,
			wantAddr:  Address{"type": "pci", "domain": "0x0000", "bus": "0x05", "slot": "0x11", "function": "0x3"},
			wantAlias: "test0",
		},
		{
			name:     "missing alias",
			markup:   `<sound model="ac97"><address type="usb" bus="0" port="1"/></sound>`,
			wantAddr: Address{"type": "usb", "bus": "0", "port": "1"},
		},
		{
			name:      "missing address",
			markup:    `<sound model="ac97"><alias name="sound0"/></sound>`,
			wantAlias: "sound0",
		},
		{
			name:   "alias without name",
			markup: `<sound model="ac97"><alias/></sound>`,
		},
		{
			name:     "partial address is still returned",
			markup:   `<sound model="ac97"><address type="pci" slot="0x03"/></sound>`,
			wantAddr: Address{"type": "pci", "slot": "0x03"},
		},
		{
			name:   "bare element",
			markup: `<channel/>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, alias := ParseIdentity(mustElement(t, tt.markup))
			if diff := cmp.Diff(tt.wantAddr, addr); diff != "" {
				t.Errorf("address mismatch (-want +got):\n%s", diff)
			}
			if alias != tt.wantAlias {
				t.Errorf("alias = %q, want %q", alias, tt.wantAlias)
			}
		})
	}

	if addr, alias := ParseIdentity(nil); addr != nil || alias != "" {
		t.Errorf("ParseIdentity(nil) = %v, %q", addr, alias)
	}
}

func TestParseAttrs(t *testing.T) {
	el := mustElement(t, `<model type="qxl" vram="32768" heads="" ram="65536"/>`)
	got := ParseAttrs(el, "vram", "heads", "ram", "vgamem")
	want := map[string]string{"vram": "32768", "ram": "65536"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseAttrs() mismatch (-want +got):\n%s", diff)
	}
	if got := ParseAttrs(nil, "vram"); len(got) != 0 {
		t.Errorf("ParseAttrs(nil) = %v, want empty", got)
	}
}

func TestParseTypeTag(t *testing.T) {
	tests := []struct {
		markup string
		want   string
	}{
		{`<interface type="network"/>`, "network"},
		{`<interface type="bridge"/>`, "bridge"},
		{`<console type="pty"/>`, "pty"},
		{`<serial type="unix"/>`, "unix"},
		{`<sound model="ac97"/>`, "sound"},
		{`<hostdev mode="subsystem" type=""/>`, "hostdev"},
	}
	for _, tt := range tests {
		if got := ParseTypeTag(mustElement(t, tt.markup)); got != tt.want {
			t.Errorf("ParseTypeTag(%s) = %q, want %q", tt.markup, got, tt.want)
		}
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		markup string
		want   Tag
	}{
		{`<memballoon model="virtio"/>`, TagBalloon},
		{`<redirdev type="spicevmc"/>`, TagRedir},
		{`<channel type="unix"/>`, TagGeneric},
		{`<interface type="bridge"/>`, TagInterface},
		{`<disk type="file"/>`, Tag("disk")},
	}
	for _, tt := range tests {
		if got := ClassOf(mustElement(t, tt.markup)); got != tt.want {
			t.Errorf("ClassOf(%s) = %q, want %q", tt.markup, got, tt.want)
		}
	}
}

func TestAddressValidate(t *testing.T) {
	tests := []struct {
		name    string
		addr    Address
		wantErr bool
	}{
		{"nil", nil, false},
		{"full pci", Address{"type": "pci", "domain": "0x0000", "bus": "0x00", "slot": "0x03", "function": "0x0"}, false},
		{"pci missing function", Address{"type": "pci", "domain": "0x0000", "bus": "0x00", "slot": "0x03"}, true},
		{"ccid", Address{"type": "ccid", "controller": "0", "slot": "0"}, false},
		{"usb missing port", Address{"type": "usb", "bus": "0"}, true},
		{"dimm", Address{"type": "dimm", "slot": "0", "base": "0x100000000"}, false},
		{"unknown type", Address{"type": "isa", "iobase": "0x505"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.addr.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var addrErr *AddressError
			if !errors.As(err, &addrErr) || !errors.Is(err, ErrMalformed) {
				t.Errorf("Validate() error = %v, want *AddressError wrapping ErrMalformed", err)
			}
		})
	}
}

func TestSetAddressCopies(t *testing.T) {
	d, err := Parse(TagSound, `<sound model="ac97"/>`, Meta{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	addr := Address{"type": "usb", "bus": "0", "port": "2"}
	d.SetAddress(addr)
	addr["port"] = "9"
	if d.Address()["port"] != "2" {
		t.Errorf("SetAddress() kept a reference to the caller map")
	}
	d.SetAlias("sound0")
	if d.Alias() != "sound0" {
		t.Errorf("Alias() = %q, want sound0", d.Alias())
	}
}
