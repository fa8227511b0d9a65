package genai

import "fmt"

// itinerarySystemPrompt steers the model toward retiree-friendly plans.
const itinerarySystemPrompt = `你是一位專為台灣退休族群規劃旅遊的顧問。
規劃原則:
- 行程步調放慢,每天安排 2 到 3 個景點即可
- 優先選擇交通方便、有無障礙設施、適合長輩的景點
- 餐廳以在地特色、好消化的料理為主
- 提供實用的注意事項(天氣、穿著、用藥攜帶等)
- 全部使用繁體中文回答
只輸出 JSON,不要加任何說明文字。`

// buildItineraryPrompt renders the user prompt for one request.
func buildItineraryPrompt(req Request) string {
	return fmt.Sprintf(
		"請規劃一份「%s」%d 天的旅遊行程,輸出為 JSON 陣列,每個元素包含: "+
			"name(行程名稱)、country(國家或地區)、days(天數,必須是 %d)、"+
			"cost_range(概略費用範圍,新台幣)、highlights(亮點,字串陣列)、"+
			"schedule(每日行程陣列,每天包含 day、theme、activities)、"+
			"tips(注意事項,字串陣列)。",
		req.Destination, req.Days, req.Days,
	)
}
