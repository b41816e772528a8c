package report

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// promptTranscriptLimit caps how much transcript goes to the model.
const promptTranscriptLimit = 20000

// buildPrompt assembles the analyst prompt: the fixed HTML section skeleton
// the model fills in, the optional meeting title, the measured speaking
// durations when the activity log produced any, and the transcript itself.
func buildPrompt(title, transcript string, activity ActivityStats, hasActivity bool) string {
	titleContext := ""
	header := "PROJE TOPLANTI ANALİZ RAPORU"
	if title != "" {
		titleContext = fmt.Sprintf("\n**TOPLANTI ADI:** %s\n", title)
		header = title
	}

	visionContext := ""
	if hasActivity && len(activity.Speakers) > 0 {
		visionContext = speakingDurations(activity)
	}

	return fmt.Sprintf(analystPrompt,
		titleContext, header, visionContext, truncateRunes(transcript, promptTranscriptLimit))
}

// speakingDurations renders the measured per-speaker block, longest speaker
// first.
func speakingDurations(stats ActivityStats) string {
	var b strings.Builder
	b.WriteString("\n**GÖRSEL TESPİT EDİLEN KONUŞMACI SÜRELERİ (KESİN VERİ):**\n")

	duration := stats.MeetingDuration
	if duration == "" {
		duration = "Bilinmiyor"
	}
	fmt.Fprintf(&b, "- Toplam Toplantı Süresi: %s\n", duration)

	names := make([]string, 0, len(stats.Speakers))
	for name := range stats.Speakers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		si, sj := stats.Speakers[names[i]], stats.Speakers[names[j]]
		if si.Seconds != sj.Seconds {
			return si.Seconds > sj.Seconds
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		sp := stats.Speakers[name]
		fmt.Fprintf(&b, "- %s: %s (%%%d), %d kez konuştu\n", name, sp.durationLabel(), sp.Percentage, sp.Turns)
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

const analystPrompt = `
SEN: Sen yüksek düzeyde profesyonel bir toplantı analisti ve formatlama uzmanısın. Görevin, aşağıdaki transkriptten detaylı bir rapor hazırlamak ve çıktıyı A4 basımına uygun, profesyonel bir HTML formatında, kalın ve vurgulu başlıklar kullanarak vermektir. Raporu sadece HTML olarak döndür. Asla düz metin veya Markdown kullanma.

%s

<h1 style='font-size: 24px; color: #1e88e5; border-bottom: 2px solid #1e88e5; padding-bottom: 5px;'>%s</h1>

<h2 style='font-size: 18px; color: #333;'>1. TOPLANTI ÖZETİ (ANA FİKİR)</h2>
<p style='font-size: 14px;'>Toplantının ana konusunu, tartışılan en önemli 3 noktayı ve nihai sonuçlarını özetle.</p>

<h2 style='font-size: 18px; color: #333;'>2. SUNULAN FİKİRLER, KARARLAR VE DURUM ANALİZİ</h2>
<p style='font-size: 14px;'>Transkriptten tespit edilen her fikri aşağıdaki tabloya ekle. Her satır bir fikir olmalı:</p>
<table border='1' cellpadding='8' cellspacing='0' width='100%%' style='border-collapse: collapse; font-size: 14px;'>
    <tr style='background-color: #f0f0f0;'>
        <th width='20%%'>Fikri Sunan</th>
        <th width='50%%'>Fikir Detayı</th>
        <th width='30%%'>Durum (Kabul/Red/Tartışıldı)</th>
    </tr>
    <!-- Transkriptten fikir satırları ekle -->
</table>

<h3 style='font-size: 16px; color: #555; margin-top: 15px;'>Nihai Kararlar</h3>
<ul style='list-style-type: disc; font-size: 14px; margin-left: 20px;'>
    <!-- Kesinleşen kararları madde madde listele -->
</ul>

<h2 style='font-size: 18px; color: #333;'>3. AKSİYON MADDELERİ (YAPILACAKLAR)</h2>
<p style='font-size: 14px;'>Transkriptten tespit edilen tüm aksiyonları tabloya ekle:</p>
<table border='1' cellpadding='8' cellspacing='0' width='100%%' style='border-collapse: collapse; font-size: 14px;'>
    <tr style='background-color: #f0f0f0;'>
        <th width='20%%'>Sorumlu Kişi</th>
        <th width='50%%'>Görev Tanımı</th>
        <th width='30%%'>Son Tarih/Durum</th>
    </tr>
    <!-- Aksiyon satırları ekle -->
</table>

<h2 style='font-size: 18px; color: #333;'>4. KATILIM KALİTESİ ANALİZİ</h2>
<p style='font-size: 14px;'>Transkriptten her katılımcının katkısını değerlendir. <strong>Katkı Notu</strong> şu kriterlere göre belirlenir:</p>
<ul style='font-size: 12px; color: #666; margin-bottom: 15px;'>
    <li><strong>Yüksek:</strong> Birden fazla fikir sunmuş, karar almış veya aksiyon üstlenmiş</li>
    <li><strong>Orta:</strong> En az bir fikir/soru sormuş veya tartışmaya katılmış</li>
    <li><strong>Düşük:</strong> Sadece dinleyici konumunda kalmış veya çok az katkı sağlamış</li>
</ul>
<table border='1' cellpadding='8' cellspacing='0' width='100%%' style='border-collapse: collapse; font-size: 14px;'>
    <tr style='background-color: #f0f0f0;'>
        <th width='25%%'>Katılımcı</th>
        <th width='20%%'>Sunduğu Fikir Sayısı</th>
        <th width='20%%'>Aldığı Karar/Görev</th>
        <th width='20%%'>Sorduğu Soru</th>
        <th width='15%%'>Katkı Notu</th>
    </tr>
    <!-- Her katılımcı için satır ekle. Katkı Notu: Düşük/Orta/Yüksek -->
</table>

%s

**TRANSKRİPT:**
%s

**ÖNEMLİ TALİMATLAR:**
- Çıktıyı sadece HTML olarak ver, markdown kullanma
- Tüm tabloları doldur, boş bırakma
- Eğer bir bölüm için bilgi yoksa "Transkriptte bu konuda bilgi bulunamadı" yaz
- Türkçe karakter kullan
- HTML yorumlarını (<!-- -->) kaldır ve gerçek içerikle değiştir
- Transkript 20.000 karakterden uzunsa, özet bilgilerle devam et
- **TOPLANTI ADI:** Eğer yukarıda toplantı adı belirtildiyse, rapor başlığında bu adı kullan.
- **KRİTİK:** 'Görsel Tespit Edilen Konuşmacı Süreleri' ve 'Katılımcı Bilgileri' bölümlerindeki verileri kullanarak, transkriptteki aksiyonları ve fikirleri mümkün olduğunca doğru kişilere atfet.
- **KATKI NOTU AÇIKLAMASI:** Her katılımcının 'Katkı Notu' değerini yukarıdaki kriterlere göre belirle ve tabloda göster.
`

// fallbackBody is the deterministic report used when the model cannot be
// called or its call fails.
func fallbackBody(participants []string, totalSpeakers int, err error) string {
	names := "Bilinmiyor"
	if len(participants) > 0 {
		names = strings.Join(participants, ", ")
	}
	return fmt.Sprintf(fallbackTemplate, len(participants), names, totalSpeakers, err)
}

const fallbackTemplate = `
<h1 style='font-size: 24px; color: #1e88e5; border-bottom: 2px solid #1e88e5; padding-bottom: 5px;'>TOPLANTI RAPORU</h1>

<h2 style='font-size: 18px; color: #333;'>1. Özet</h2>
<p style='font-size: 14px;'>Toplantı kaydı alındı. %d katılımcı tespit edildi.</p>

<h2 style='font-size: 18px; color: #333;'>2. Katılımcılar</h2>
<p style='font-size: 14px;'>%s</p>

<h2 style='font-size: 18px; color: #333;'>3. Konuşmacı İstatistikleri</h2>
<p style='font-size: 14px;'>Toplam konuşmacı: %d</p>

<h2 style='font-size: 18px; color: #333;'>4. Not</h2>
<p style='font-size: 14px;'>Detaylı analiz için model erişimi gerekli.<br>Hata: %v</p>
`

// noTranscriptBody is used when the meeting produced no transcript at all:
// nobody spoke, or every segment came back as silence.
func noTranscriptBody(participants []string) string {
	names := "Bilinmiyor"
	if len(participants) > 0 {
		names = strings.Join(participants, ", ")
	}
	return fmt.Sprintf(noTranscriptTemplate, len(participants), names)
}

const noTranscriptTemplate = `
<h1 style='font-size: 24px; color: #1e88e5; border-bottom: 2px solid #1e88e5; padding-bottom: 5px;'>TOPLANTI RAPORU</h1>

<h2 style='font-size: 18px; color: #333;'>1. Özet</h2>
<p style='font-size: 14px;'>Toplantı kaydı alındı. %d katılımcı tespit edildi.</p>

<h2 style='font-size: 18px; color: #333;'>2. Katılımcılar</h2>
<p style='font-size: 14px;'>%s</p>

<h2 style='font-size: 18px; color: #333;'>3. Not</h2>
<p style='font-size: 14px;'>Toplantıda konuşma tespit edilemediği için transkript oluşturulamadı.</p>
`
