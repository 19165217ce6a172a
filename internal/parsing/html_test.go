package parsing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testParser uses low thresholds so fixtures can stay short.
func testParser() *Parser {
	return &Parser{MinMainTextLen: 10, MinImageDim: 50}
}

func TestParseHTML_SectionsFromHeadings(t *testing.T) {
	html := `
	<html>
	<head><title>Corn Nitrogen Deficiency</title></head>
	<body>
		<main>
			<h1>Nitrogen Deficiency in Corn</h1>
			<p>Nitrogen deficiency first appears on older leaves.</p>
			<h2>Symptoms</h2>
			<p>Yellowing begins at the leaf tip and progresses along the midrib.</p>
			<p>Lower leaves fire first while upper leaves stay green.</p>
			<h2>Management</h2>
			<p>Sidedress nitrogen before the rapid growth stage.</p>
		</main>
	</body>
	</html>`

	pc, err := testParser().ParseHTML(html, "https://ext.example.edu/corn/nitrogen.html")
	require.NoError(t, err)

	assert.Equal(t, "Corn Nitrogen Deficiency", pc.Title)
	require.Len(t, pc.Sections, 3)
	assert.Equal(t, "Nitrogen Deficiency in Corn", pc.Sections[0].Heading)
	assert.Equal(t, "Symptoms", pc.Sections[1].Heading)
	assert.Contains(t, pc.Sections[1].Text, "leaf tip")
	assert.Contains(t, pc.Sections[1].Text, "Lower leaves fire first")
	assert.Equal(t, "Management", pc.Sections[2].Heading)
	assert.Greater(t, pc.WordCount, 20)
}

func TestParseHTML_NoiseIsStripped(t *testing.T) {
	html := `
	<html><body>
		<nav>Home | Crops | Contact</nav>
		<div class="cookie-banner">We use cookies</div>
		<main>
			<h2>Scouting</h2>
			<p>Walk fields weekly during grain fill.</p>
		</main>
		<footer>University of Example Extension</footer>
		<script>alert("hi")</script>
	</body></html>`

	pc, err := testParser().ParseHTML(html, "https://ext.example.edu/scouting")
	require.NoError(t, err)

	all := strings.Join([]string{pc.Title, pc.Sections[0].Heading, pc.Sections[0].Text}, " ")
	assert.Contains(t, all, "Walk fields weekly")
	assert.NotContains(t, all, "cookies")
	assert.NotContains(t, all, "Contact")
	assert.NotContains(t, all, "alert")
}

func TestParseHTML_MainContainerPreferred(t *testing.T) {
	html := `
	<html><body>
		<div class="promo">Subscribe to our newsletter for unrelated reasons.</div>
		<main>
			<p>Stalk rot survey results show increased incidence in continuous corn fields.</p>
		</main>
	</body></html>`

	pc, err := testParser().ParseHTML(html, "https://ext.example.edu/stalk-rot")
	require.NoError(t, err)
	require.Len(t, pc.Sections, 1)
	assert.Contains(t, pc.Sections[0].Text, "Stalk rot survey")
	assert.NotContains(t, pc.Sections[0].Text, "newsletter")
}

func TestParseHTML_FallsBackToBodyWhenMainIsTooSmall(t *testing.T) {
	html := `
	<html><body>
		<main>stub</main>
		<div>
			<p>The actual article text lives outside the main element on this site.</p>
		</div>
	</body></html>`

	p := &Parser{MinMainTextLen: 50, MinImageDim: 50}
	pc, err := p.ParseHTML(html, "https://ext.example.edu/odd-layout")
	require.NoError(t, err)
	require.NotEmpty(t, pc.Sections)
	assert.Contains(t, pc.Sections[0].Text, "actual article text")
}

func TestParseHTML_TableExtraction(t *testing.T) {
	html := `
	<html><body><main>
		<h2>Nitrogen Rates</h2>
		<p>Recommended rates vary with yield goal.</p>
		<table>
			<caption>Nitrogen rate by yield goal</caption>
			<tr><th>Yield goal (bu/ac)</th><th>N rate (lb/ac)</th></tr>
			<tr><td>100</td><td>80</td></tr>
			<tr><td>150</td><td>120</td></tr>
		</table>
		<table><tr><td>layout-only cell</td></tr></table>
	</main></body></html>`

	pc, err := testParser().ParseHTML(html, "https://ext.example.edu/n-rates")
	require.NoError(t, err)

	require.Len(t, pc.Tables, 1, "single-cell layout tables must be dropped")
	table := pc.Tables[0]
	assert.Equal(t, "Nitrogen Rates", table.Heading)
	assert.Equal(t, "Nitrogen rate by yield goal", table.Caption)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []string{"Yield goal (bu/ac)", "N rate (lb/ac)"}, table.Rows[0])
	assert.Equal(t, []string{"150", "120"}, table.Rows[2])
	assert.Equal(t, 1, pc.TableCount)
}

func TestParseHTML_Images(t *testing.T) {
	html := `
	<html><body><main>
		<h2>Gray Leaf Spot</h2>
		<p>Rectangular lesions run parallel to leaf veins.</p>
		<img src="/images/gls-lesion.jpg" alt="Gray leaf spot lesion">
		<img src="data:image/png;base64,AAAA" alt="inline">
		<img src="icons/print.png" width="16" height="16" alt="print icon">
		<figure>
			<img src="figs/gls-field.jpg">
			<figcaption>Severe infection during grain fill</figcaption>
		</figure>
	</main></body></html>`

	pc, err := testParser().ParseHTML(html, "https://ext.example.edu/crops/gls.html")
	require.NoError(t, err)

	require.Len(t, pc.Sections, 1)
	images := pc.Sections[0].Images
	require.Len(t, images, 2, "data URIs and icon-sized images must be skipped")

	assert.Equal(t, "https://ext.example.edu/images/gls-lesion.jpg", images[0].URL)
	assert.Equal(t, "Gray leaf spot lesion", images[0].AltText)
	assert.Contains(t, images[0].Context, "Rectangular lesions")
	assert.Equal(t, "Gray Leaf Spot", images[0].SectionHeading)

	assert.Equal(t, "https://ext.example.edu/crops/figs/gls-field.jpg", images[1].URL)
	assert.Equal(t, "Severe infection during grain fill", images[1].Caption)

	assert.Equal(t, 2, pc.ImageCount)
}

func TestParseHTML_ListItems(t *testing.T) {
	html := `
	<html><body><main>
		<h2>Integrated Management</h2>
		<ul>
			<li>Rotate away from host crops for two seasons</li>
			<li>Select resistant hybrids</li>
		</ul>
	</main></body></html>`

	pc, err := testParser().ParseHTML(html, "https://ext.example.edu/ipm")
	require.NoError(t, err)
	require.Len(t, pc.Sections, 1)
	assert.Contains(t, pc.Sections[0].Text, "- Rotate away from host crops")
	assert.Contains(t, pc.Sections[0].Text, "- Select resistant hybrids")
}

func TestParseHTML_EmptyContent(t *testing.T) {
	_, err := testParser().ParseHTML("<html><body></body></html>", "https://ext.example.edu/empty")
	require.Error(t, err)

	var emptyErr *EmptyContentError
	assert.ErrorAs(t, err, &emptyErr)
}
