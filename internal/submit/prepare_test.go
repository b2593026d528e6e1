package submit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/activesave/internal/form"
)

func names(controls []*form.Control) []string {
	var out []string
	for _, c := range controls {
		v, _ := c.Value()
		out = append(out, c.Name()+"="+v)
	}
	return out
}

func TestPrepare_MethodAndAction(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		method string
		action string
	}{
		{name: "defaults to GET", markup: `<form id="f" action="/save"></form>`, method: "GET", action: "/save"},
		{name: "empty method", markup: `<form id="f" method="" action="/save"></form>`, method: "GET", action: "/save"},
		{name: "upper-cased", markup: `<form id="f" method="post" action="/save"></form>`, method: "POST", action: "/save"},
		{name: "no action", markup: `<form id="f" method="put"></form>`, method: "PUT", action: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Prepare(form.MustParseForm(tt.markup))
			require.NoError(t, err)
			require.Equal(t, "f", req.FormID)
			require.Equal(t, tt.method, req.Method)
			require.Equal(t, tt.action, req.Action)
		})
	}
}

func TestShadows(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   []string
	}{
		{
			name:   "hidden duplicating a text input",
			markup: `<form id="f"><input type="hidden" name="bio" value="old"><input name="bio" value="new"></form>`,
			want:   []string{"bio=old"},
		},
		{
			name: "checkbox shadow kept when unchecked",
			markup: `<form id="f">
				<input type="checkbox" name="public" value="true">
				<input type="hidden" name="public" value="false">
			</form>`,
			want: nil,
		},
		{
			name: "checkbox shadow stripped when checked",
			markup: `<form id="f">
				<input type="checkbox" name="public" value="true" checked>
				<input type="hidden" name="public" value="false">
			</form>`,
			want: []string{"public=false"},
		},
		{
			name: "repeated hiddens keep the last",
			markup: `<form id="f">
				<input type="hidden" name="token" value="a">
				<input type="hidden" name="token" value="b">
				<input type="hidden" name="token" value="c">
			</form>`,
			want: []string{"token=a", "token=b"},
		},
		{
			name:   "hidden duplicating a select",
			markup: `<form id="f"><input type="hidden" name="country" value=""><select name="country"><option value="nl">NL</option></select></form>`,
			want:   []string{"country="},
		},
		{
			name:   "unrelated hidden survives",
			markup: `<form id="f"><input type="hidden" name="id" value="7"><input name="bio" value="x"></form>`,
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, names(Shadows(form.MustParseForm(tt.markup))))
		})
	}
}

func TestPrepare_StripsShadowsAndRestoresTree(t *testing.T) {
	f := form.MustParseForm(`<form id="profile" method="post" action="/profile">
		<input type="hidden" name="bio" value="stale">
		<fieldset>
			<input name="bio" value="fresh">
			<input type="checkbox" name="public" value="true" checked>
			<input type="hidden" name="public" value="false">
		</fieldset>
		<input type="hidden" name="token" value="1">
		<input type="hidden" name="token" value="2">
	</form>`)
	before := f.HTML()
	fieldsBefore := f.Serialize()

	req, err := Prepare(f)
	require.NoError(t, err)
	require.Equal(t, "bio=fresh&public=true&token=2", req.Payload)

	require.Equal(t, before, f.HTML(), "rendered form must be unchanged")
	require.Equal(t, fieldsBefore, f.Serialize())
	require.Len(t, f.Controls(), 6)
}
