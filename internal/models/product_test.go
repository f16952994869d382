package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func completeRecord() *ProductRecord {
	p := NewProductRecord("https://www.adidas.jp/item/IK9123.html")
	p.Breadcrumb = "メンズ / ウェア・服 / Tシャツ"
	p.Category = "メンズ オリジナルス"
	p.Title = "アディカラー クラシックス 3ストライプ 半袖Tシャツ"
	p.Price = "¥5,489"
	p.ImageURL = "https://assets.adidas.com/images/IK9123.jpg"
	return p
}

func TestProductRecordComplete(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *ProductRecord)
		want    bool
		missing []string
	}{
		{name: "all mandatory fields", mutate: func(*ProductRecord) {}, want: true},
		{name: "missing price", mutate: func(p *ProductRecord) { p.Price = "" }, missing: []string{"price"}},
		{name: "blank title", mutate: func(p *ProductRecord) { p.Title = "  " }, missing: []string{"title"}},
		{
			name:    "missing breadcrumb and image",
			mutate:  func(p *ProductRecord) { p.Breadcrumb = ""; p.ImageURL = "" },
			missing: []string{"breadcrumb", "image_url"},
		},
		{
			name:   "optional fields empty",
			mutate: func(p *ProductRecord) { p.Rating = ""; p.Reviews = nil; p.SizeChart = nil },
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := completeRecord()
			tt.mutate(p)
			assert.Equal(t, tt.want, p.Complete())
			assert.Equal(t, tt.missing, p.MissingFields())
		})
	}
}

func TestProductRecordRow(t *testing.T) {
	p := completeRecord()
	p.Sizes = []string{"S", "M"}
	p.SizeChart = SizeChart{"胸囲": {{"S": "85-91", "M": "92-98"}}}
	p.Rating = "4.6"
	p.ReviewCount = 1
	p.Reviews = []Review{{Date: "2024/01/02", Rating: 5, Title: "<良い>", Body: "快適", ReviewerID: "taro"}}

	row := p.Row()
	assert.Len(t, row, len(Columns))
	assert.Equal(t, p.Breadcrumb, row[0])
	assert.Equal(t, "S, M", row[5])
	assert.Equal(t, `{"胸囲":[{"M":"92-98","S":"85-91"}]}`, row[6])
	assert.Equal(t, "4.6", row[10])
	assert.Equal(t, 1, row[11])
	assert.Equal(t,
		`[{"date":"2024/01/02","rating":5,"review_title":"<良い>","review_description":"快適","reviewer_id":"taro"}]`,
		row[12])
	assert.Equal(t, "[]", row[13])
}
