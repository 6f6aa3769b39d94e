package htmlutil

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<form>
	<input type="hidden" name="__csrf_magic" value="sid:abc,123">
	<input type="hidden" name="state_code" value="2">
	<input type="text" name="citation_no" value="">
</form>
<a href="display_pdf.php?filename=x">  Order
   copy </a>
<a name="top">no href</a>
<A HREF=" ../orders/order%2520one.pdf ">click
here</A>
<a href="  ">blank</a>
<script>window.location.href = "next.php";</script>
<script src="app.js"></script>
</body></html>`

func TestHelpers(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	fields := HiddenFields(doc.Selection)
	require.Equal(t, "sid:abc,123", fields.Get("__csrf_magic"))
	require.Equal(t, "2", fields.Get("state_code"))
	require.False(t, fields.Has("citation_no"))

	anchors := Anchors(context.Background(), doc.Find("a"))
	require.Equal(t, []Anchor{
		{Text: "Order copy", Href: "display_pdf.php?filename=x"},
		{Text: "click here", Href: "../orders/order%2520one.pdf"},
	}, anchors)

	scripts := ScriptTexts(doc.Selection)
	require.Len(t, scripts, 1)
	require.Contains(t, scripts[0], "window.location.href")
}

func TestCollapseSpace(t *testing.T) {
	require.Equal(t, "HON'BLE SRI JUSTICE X", CollapseSpace("\u00a0 HON'BLE\tSRI \n JUSTICE\u200b X "))
	require.Equal(t, "", CollapseSpace(" \n\t"))
}
