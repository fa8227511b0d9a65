package lineutil

import (
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Palette for flex bubbles
const (
	ColorPrimary   = "#06C755"
	ColorHeroText  = "#FFFFFF"
	ColorTitle     = "#111111"
	ColorBody      = "#555555"
	ColorSubtle    = "#AAAAAA"
	ColorHighlight = "#FF6B35"
)

// MaxBubblesPerCarousel is the LINE API limit for a Flex carousel.
const MaxBubblesPerCarousel = 10

// FlexBox wraps messaging_api.FlexBox with a fluent API.
type FlexBox struct {
	*messaging_api.FlexBox
}

// NewFlexBox creates a box with the given layout and contents.
func NewFlexBox(layout string, contents ...messaging_api.FlexComponentInterface) *FlexBox {
	return &FlexBox{&messaging_api.FlexBox{
		Layout:   messaging_api.FlexBoxLAYOUT(layout),
		Contents: contents,
	}}
}

// WithSpacing sets the spacing between components.
func (b *FlexBox) WithSpacing(spacing string) *FlexBox {
	b.Spacing = spacing
	return b
}

// WithMargin sets the margin of the box.
func (b *FlexBox) WithMargin(margin string) *FlexBox {
	b.Margin = margin
	return b
}

// WithPaddingAll sets the padding for all sides.
func (b *FlexBox) WithPaddingAll(padding string) *FlexBox {
	b.PaddingAll = padding
	return b
}

// WithBackgroundColor sets the background color.
func (b *FlexBox) WithBackgroundColor(color string) *FlexBox {
	b.BackgroundColor = color
	return b
}

// FlexText wraps messaging_api.FlexText with a fluent API.
type FlexText struct {
	*messaging_api.FlexText
}

// NewFlexText creates a text component. Wrapping is on by default since
// nearly all bot content is multi-line Chinese text.
func NewFlexText(text string) *FlexText {
	return &FlexText{&messaging_api.FlexText{
		Text: text,
		Wrap: true,
	}}
}

// WithWeight sets the font weight.
func (t *FlexText) WithWeight(weight string) *FlexText {
	t.Weight = messaging_api.FlexTextWEIGHT(weight)
	return t
}

// WithSize sets the font size.
func (t *FlexText) WithSize(size string) *FlexText {
	t.Size = size
	return t
}

// WithColor sets the text color.
func (t *FlexText) WithColor(color string) *FlexText {
	t.Color = color
	return t
}

// WithMargin sets the margin.
func (t *FlexText) WithMargin(margin string) *FlexText {
	t.Margin = margin
	return t
}

// FlexButton wraps messaging_api.FlexButton with a fluent API.
type FlexButton struct {
	*messaging_api.FlexButton
}

// NewFlexButton creates a button with the given action.
func NewFlexButton(action messaging_api.ActionInterface) *FlexButton {
	return &FlexButton{&messaging_api.FlexButton{Action: action}}
}

// WithStyle sets the button style.
func (b *FlexButton) WithStyle(style string) *FlexButton {
	b.Style = messaging_api.FlexButtonSTYLE(style)
	return b
}

// WithColor sets the button color.
func (b *FlexButton) WithColor(color string) *FlexButton {
	b.Color = color
	return b
}

// WithHeight sets the button height.
func (b *FlexButton) WithHeight(height string) *FlexButton {
	b.Height = messaging_api.FlexButtonHEIGHT(height)
	return b
}

// NewFlexSeparator creates a separator with the given margin.
func NewFlexSeparator(margin string) *messaging_api.FlexSeparator {
	return &messaging_api.FlexSeparator{Margin: margin}
}

// NewHeroBox creates the standard green header box used across modules.
func NewHeroBox(title, subtitle string) *FlexBox {
	contents := []messaging_api.FlexComponentInterface{
		NewFlexText(title).WithWeight("bold").WithSize("xl").WithColor(ColorHeroText).FlexText,
	}
	if subtitle != "" {
		contents = append(contents,
			NewFlexText(subtitle).WithSize("sm").WithColor(ColorHeroText).WithMargin("sm").FlexText)
	}
	return NewFlexBox("vertical", contents...).
		WithBackgroundColor(ColorPrimary).
		WithPaddingAll("20px")
}

// NewKeyValueRow creates a label/value row for bubble bodies.
func NewKeyValueRow(label, value string) messaging_api.FlexComponentInterface {
	return NewFlexBox("horizontal",
		NewFlexText(label).WithSize("sm").WithColor(ColorSubtle).FlexText,
		NewFlexText(value).WithSize("sm").WithColor(ColorBody).WithMargin("md").FlexText,
	).WithMargin("md").FlexBox
}

// NewBubble assembles a bubble from optional header, body and footer.
func NewBubble(header, body, footer *FlexBox) messaging_api.FlexBubble {
	bubble := messaging_api.FlexBubble{}
	if header != nil {
		bubble.Header = header.FlexBox
	}
	if body != nil {
		bubble.Body = body.FlexBox
	}
	if footer != nil {
		bubble.Footer = footer.FlexBox
	}
	return bubble
}

// NewFlexMessage wraps contents in a Flex message.
func NewFlexMessage(altText string, contents messaging_api.FlexContainerInterface) *messaging_api.FlexMessage {
	if len(altText) > maxAltTextBytes {
		altText = TruncateRunes(altText, maxAltTextBytes/3)
	}
	return &messaging_api.FlexMessage{
		AltText:  altText,
		Contents: contents,
	}
}

// BuildCarouselMessages splits bubbles into Flex carousel messages of at
// most ten bubbles each, with a page range in the alt text past page one.
func BuildCarouselMessages(altText string, bubbles []messaging_api.FlexBubble) []messaging_api.MessageInterface {
	if len(bubbles) == 0 {
		return nil
	}

	var messages []messaging_api.MessageInterface
	for i := 0; i < len(bubbles); i += MaxBubblesPerCarousel {
		end := min(i+MaxBubblesPerCarousel, len(bubbles))

		msgAltText := altText
		if len(bubbles) > MaxBubblesPerCarousel && i > 0 {
			msgAltText = fmt.Sprintf("%s (%d-%d)", altText, i+1, end)
		}

		messages = append(messages, NewFlexMessage(msgAltText, &messaging_api.FlexCarousel{
			Contents: bubbles[i:end],
		}))
	}
	return messages
}
