package form

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const profileMarkup = `<form id="f1" action="/profile" method="post" data-activesave-subscope="profile">
	<input type="text" name="bio" value="">
	<input type="checkbox" name="public" value="true"><input type="hidden" name="public" value="false">
	<select name="country">
		<option value="">--</option>
		<option value="nz" selected>New Zealand</option>
	</select>
	<textarea name="notes">first line</textarea>
	<input type="radio" name="plan" value="free" checked>
	<input type="radio" name="plan" value="pro">
	<input type="submit" name="save" value="Save">
	<input type="text" value="unnamed">
	<input type="text" name="locked" value="x" disabled>
</form>`

func TestParseForm_Attributes(t *testing.T) {
	f := MustParseForm(profileMarkup)

	require.Equal(t, "f1", f.ID())
	require.Equal(t, "/profile", f.Action())
	require.Equal(t, "post", f.Method())
	require.Equal(t, "profile", f.Subscope())
}

func TestParseForm_ControlKinds(t *testing.T) {
	f := MustParseForm(profileMarkup)

	kinds := make([]Kind, 0)
	for _, c := range f.Controls() {
		kinds = append(kinds, c.Kind())
	}
	require.Equal(t, []Kind{
		KindText, KindCheckbox, KindHidden, KindSelect, KindTextArea,
		KindRadio, KindRadio, KindButton, KindText, KindText,
	}, kinds)
}

func TestParseForm_NoForm(t *testing.T) {
	_, err := ParseForm(strings.NewReader(`<div>nothing</div>`))
	require.ErrorIs(t, err, ErrNoForm)
}

func TestParseDocument_MultipleForms(t *testing.T) {
	doc, err := ParseDocument(strings.NewReader(`<form id="a"></form><form id="b"><input name="x"></form>`))
	require.NoError(t, err)
	require.Len(t, doc.Forms(), 2)

	b, ok := doc.Form("b")
	require.True(t, ok)
	require.Len(t, b.Controls(), 1)

	_, ok = doc.Form("missing")
	require.False(t, ok)
}

func TestShadowLinkage(t *testing.T) {
	f := MustParseForm(profileMarkup)

	checkbox := f.ByName("public")[0]
	shadow := f.ByName("public")[1]
	require.Equal(t, KindCheckbox, checkbox.Kind())
	require.Same(t, shadow, checkbox.Shadow())
	require.Same(t, checkbox, shadow.ShadowOf())
	require.Nil(t, f.ByName("bio")[0].Shadow())
}

func TestSerialize_FollowsBrowserRules(t *testing.T) {
	f := MustParseForm(profileMarkup)

	require.Equal(t,
		"bio=&public=false&country=nz&notes=first+line&plan=free",
		f.Serialize())

	f.ByName("public")[0].SetChecked(true)
	f.ByName("bio")[0].SetValue("hello world")
	require.Equal(t,
		"bio=hello+world&public=true&public=false&country=nz&notes=first+line&plan=free",
		f.Serialize())
}

func TestSerialize_NormalizesNewlines(t *testing.T) {
	f := MustParseForm(`<form id="f"><textarea name="t"></textarea></form>`)
	f.ByName("t")[0].SetValue("a\nb")
	require.Equal(t, "t=a%0D%0Ab", f.Serialize())
}

func TestSnapshot_HiddenFirst(t *testing.T) {
	f := MustParseForm(profileMarkup)
	f.ByName("public")[0].SetChecked(true)

	snap := f.Snapshot()
	require.Equal(t, true, snap["public"], "checkbox must overwrite its shadow")
	require.Equal(t, "", snap["bio"])
	require.Equal(t, "nz", snap["country"])
	require.Equal(t, "first line", snap["notes"])
	require.Equal(t, "free", snap["plan"])
	require.Equal(t, "x", snap["locked"])
	require.NotContains(t, snap, "save")
	require.NotContains(t, snap, "")
}

func TestSnapshot_SelectWithoutOptions(t *testing.T) {
	f := MustParseForm(`<form id="f"><select name="region" data-async-load="true"></select></form>`)
	snap := f.Snapshot()
	require.Contains(t, snap, "region")
	require.Nil(t, snap["region"])
}

func TestSelect_SetValue(t *testing.T) {
	f := MustParseForm(profileMarkup)
	sel := f.ByName("country")[0]

	sel.SetValue("")
	v, ok := sel.Value()
	require.True(t, ok)
	require.Empty(t, v)

	sel.SetValue("missing")
	_, ok = sel.Value()
	require.False(t, ok)
	require.NotContains(t, f.Serialize(), "country=")
}

func TestSelect_AsyncOptions(t *testing.T) {
	f := MustParseForm(`<form id="f"><select id="region" name="region" data-async-load="true"></select></form>`)
	sel, ok := f.Control("region")
	require.True(t, ok)
	require.True(t, sel.Async())
	require.False(t, sel.Ready())
	require.False(t, sel.HasOption("opt3"))

	fired := 0
	sel.OnReady(func() { fired++ })
	sel.SetOptions([]Option{{Value: "opt1"}, {Value: "opt3", Label: "Option 3"}})

	require.True(t, sel.Ready())
	require.True(t, sel.HasOption("opt3"))
	require.Equal(t, 1, fired)
	v, _ := sel.Value()
	require.Equal(t, "opt1", v)
	require.Contains(t, f.HTML(), "Option 3")

	sel.SetOptions([]Option{{Value: "opt3"}})
	require.Equal(t, 1, fired, "listeners are one-shot")
}

const tagsMarkup = `<form id="t">
	<select name="tags" multiple>
		<option value="a" selected>A</option>
		<optgroup label="more"><option value="b" selected>B</option></optgroup>
		<option value="c">C</option>
	</select>
	<input name="after" value="1">
</form>`

func TestSelectMultiple_SerializesEverySelectedOption(t *testing.T) {
	f := MustParseForm(tagsMarkup)
	sel := f.ByName("tags")[0]

	require.True(t, sel.Multiple())
	require.Equal(t, []string{"a", "b"}, sel.Values())
	require.Equal(t, "tags=a&tags=b&after=1", f.Serialize())
	require.Equal(t, []string{"a", "b"}, f.Snapshot()["tags"])
}

func TestSelectMultiple_SetValues(t *testing.T) {
	f := MustParseForm(tagsMarkup)
	sel := f.ByName("tags")[0]

	sel.SetValues([]string{"c", "a", "missing"})
	require.Equal(t, []string{"a", "c"}, sel.Values())
	require.Equal(t, 2, strings.Count(f.HTML(), "selected"))

	sel.SetValues(nil)
	require.Empty(t, sel.Values())
	require.Nil(t, f.Snapshot()["tags"])
	require.Equal(t, "after=1", f.Serialize())
}

func TestSelectMultiple_NoDefaultSelection(t *testing.T) {
	f := MustParseForm(`<form id="t"><select name="tags" multiple><option value="a">A</option></select></form>`)
	require.Empty(t, f.ByName("tags")[0].Values())
	require.Empty(t, f.Serialize())
}

func TestSelectMultiple_SetOptionsKeepsOfferedSelection(t *testing.T) {
	f := MustParseForm(tagsMarkup)
	sel := f.ByName("tags")[0]

	sel.SetOptions([]Option{{Value: "b"}, {Value: "c"}, {Value: "a"}})
	require.Equal(t, []string{"b", "a"}, sel.Values())
	require.True(t, sel.HasOption("a", "c"))
	require.False(t, sel.HasOption("a", "z"))
}

func TestSelectSingle_LastSelectedWins(t *testing.T) {
	f := MustParseForm(`<form id="t"><select name="one"><option value="a" selected>A</option><option value="b" selected>B</option></select></form>`)
	require.Equal(t, "one=b", f.Serialize())

	f.ByName("one")[0].SetValues([]string{"a", "b"})
	require.Equal(t, "one=a", f.Serialize())
}

func TestRadio_SetCheckedUnchecksGroup(t *testing.T) {
	f := MustParseForm(profileMarkup)
	radios := f.ByName("plan")

	radios[1].SetChecked(true)
	require.False(t, radios[0].Checked())
	require.True(t, radios[1].Checked())
	require.Contains(t, f.Serialize(), "plan=pro")
}

func TestAppendHidden(t *testing.T) {
	f := MustParseForm(`<form id="f"><input name="a" value="1"></form>`)
	c := f.AppendHidden("later", "v")

	require.Equal(t, KindHidden, c.Kind())
	require.Equal(t, "a=1&later=v", f.Serialize())
	require.Contains(t, f.HTML(), `name="later"`)
}

func TestDetachReattach_RestoresStructure(t *testing.T) {
	f := MustParseForm(profileMarkup)
	before := f.HTML()

	public := f.ByName("public")
	f.Detach(public[1])
	f.Detach(f.ByName("bio")[0])
	require.NotContains(t, f.Serialize(), "public=false")
	require.NotContains(t, f.Serialize(), "bio=")
	require.Len(t, f.ByName("public"), 1)

	f.Reattach()
	require.Equal(t, before, f.HTML())
	require.Len(t, f.ByName("public"), 2)
}

func TestTextArea_SetValueRendered(t *testing.T) {
	f := MustParseForm(profileMarkup)
	f.ByName("notes")[0].SetValue("rewritten")

	var buf bytes.Buffer
	require.NoError(t, f.Render(&buf))
	require.Contains(t, buf.String(), ">rewritten</textarea>")
}

func TestFormatValue(t *testing.T) {
	require.Equal(t, "", FormatValue(nil))
	require.Equal(t, "x", FormatValue("x"))
	require.Equal(t, "true", FormatValue(true))
	require.Equal(t, "3", FormatValue(float64(3)))
	require.Equal(t, "2.5", FormatValue(2.5))
	require.Equal(t, "a,b", FormatValue([]any{"a", "b"}))
}

func TestStrings(t *testing.T) {
	require.Nil(t, Strings(nil))
	require.Equal(t, []string{"a", "b"}, Strings([]any{"a", "b"}))
	require.Equal(t, []string{"a"}, Strings([]string{"a"}))
	require.Equal(t, []string{"true"}, Strings(true))
}

func TestIsTrue(t *testing.T) {
	require.True(t, IsTrue(true))
	require.True(t, IsTrue("true"))
	require.True(t, IsTrue("True"))
	require.False(t, IsTrue("TRUE"))
	require.False(t, IsTrue(false))
	require.False(t, IsTrue(nil))
}
